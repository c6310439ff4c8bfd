package infra

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// FilePolicyRepository lê políticas de um arquivo YAML cujo nível de cima é
// a chave da política:
//
//	throttle_policy:
//	  ip_throttling: true
//	  rates:
//	    - period: second
//	      limit: 5
//
// Get relê o arquivo a cada chamada (use application.RepositoryProvider com
// Refresh para não ler a cada requisição). Save grava num arquivo temporário
// e renomeia.
type FilePolicyRepository struct {
	path  string
	log   *zap.Logger
	check *patternCheck

	mu sync.Mutex // serializa Save
}

var _ domain.PolicyRepository = (*FilePolicyRepository)(nil)

const watchDebounce = 100 * time.Millisecond

func NewFilePolicyRepository(path string, log *zap.Logger) (*FilePolicyRepository, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, PolicyError.New("resolve %q: %w", path, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FilePolicyRepository{path: absPath, log: log, check: newPatternCheck(log)}, nil
}

func (r *FilePolicyRepository) Path() string { return r.path }

func (r *FilePolicyRepository) load() (map[string]*domain.Policy, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]*domain.Policy{}, nil
	}
	if err != nil {
		return nil, PolicyError.New("read %s: %w", r.path, err)
	}
	doc := map[string]*domain.Policy{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, PolicyError.New("parse %s: %w", r.path, err)
	}
	return doc, nil
}

func (r *FilePolicyRepository) Get(_ context.Context, key string) (*domain.Policy, bool, error) {
	doc, err := r.load()
	if err != nil {
		return nil, false, err
	}
	p := doc[key]
	if p == nil {
		return nil, false, nil
	}
	if err := p.Validate(); err != nil {
		return nil, false, PolicyError.New("%s: %w", key, err)
	}
	r.check.warn(p)
	return p, true, nil
}

func (r *FilePolicyRepository) Save(_ context.Context, key string, p *domain.Policy) error {
	if err := p.Validate(); err != nil {
		return PolicyError.Wrap(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}
	doc[key] = p.Clone()

	data, err := yaml.Marshal(doc)
	if err != nil {
		return PolicyError.New("encode: %w", err)
	}
	return PolicyError.Wrap(writeFileAtomic(r.path, data))
}

func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Watch observa o diretório do arquivo e avisa no canal quando ele muda
// (várias escritas seguidas viram um aviso só). O canal fecha quando ctx
// acaba.
func (r *FilePolicyRepository) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, PolicyError.New("create watcher: %w", err)
	}

	// observa o diretório: o rename do Save troca o inode do arquivo
	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, PolicyError.New("watch %s: %w", dir, err)
	}

	ch := make(chan struct{}, 1)
	go r.watchLoop(ctx, watcher, ch)

	r.log.Info("watching policy file", zap.String("path", r.path))
	return ch, nil
}

func (r *FilePolicyRepository) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, ch chan struct{}) {
	defer close(ch)
	defer func() { _ = watcher.Close() }()

	name := filepath.Base(r.path)
	var debounce *time.Timer
	// o canal não pode fechar com um AfterFunc pendente
	var pending sync.WaitGroup
	defer pending.Wait()

	for {
		select {
		case <-ctx.Done():
			if debounce != nil && debounce.Stop() {
				pending.Done()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				if event.Has(fsnotify.Remove) {
					r.log.Warn("policy file removed", zap.String("path", r.path))
				}
				continue
			}
			if debounce != nil && debounce.Stop() {
				pending.Done()
			}
			pending.Add(1)
			debounce = time.AfterFunc(watchDebounce, func() {
				defer pending.Done()
				select {
				case ch <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.log.Error("policy watcher error", zap.Error(err))
		}
	}
}
