package main

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap/zapcore"
)

// ConfigError é a classe dos erros de configuração; qualquer um aborta o start.
var ConfigError = errs.Class("config")

type config struct {
	listenAddr      string
	adminAddr       string
	upstreamURL     string
	throttleEnabled bool

	store            string // memory | redis | badger
	redisAddr        string
	redisPassword    string
	redisDB          int
	badgerPath       string
	keyPrefix        string
	storeTimeout     time.Duration
	storeMaxInflight int
	failClosed       bool

	policySource      string // file | redis
	policyFile        string
	policyRedisPrefix string
	policyRefresh     time.Duration

	clientKeyHeader string
	trustXFF        bool
	trustedProxies  []string
	rejectStatus    int
	quotaMessage    string
	addHeaders      bool

	maxInflight     int
	inflightTimeout time.Duration

	statsEnabled      bool
	statsPrefix       string
	statsTTL          time.Duration
	statsTrackClients bool

	logLevel       zapcore.Level
	logDevelopment bool
	logSampleRPS   float64
	logLabel       string
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.adminAddr = getenvDefault("ADMIN_ADDR", ":9090")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.throttleEnabled = getenvBoolDefault("THROTTLE_ENABLED", true)

	cfg.store = strings.ToLower(getenvDefault("THROTTLE_STORE", "memory"))
	cfg.redisAddr = os.Getenv("THROTTLE_REDIS_ADDR")
	cfg.redisPassword = os.Getenv("THROTTLE_REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("THROTTLE_REDIS_DB", 0)
	cfg.badgerPath = os.Getenv("THROTTLE_BADGER_PATH")
	cfg.keyPrefix = getenvDefault("THROTTLE_KEY_PREFIX", "throttle")
	cfg.storeTimeout = getenvDurationDefault("THROTTLE_STORE_TIMEOUT", 50*time.Millisecond)
	cfg.storeMaxInflight = getenvIntDefault("THROTTLE_STORE_MAX_INFLIGHT", 256)
	cfg.failClosed = getenvBoolDefault("THROTTLE_FAIL_CLOSED", false)

	cfg.policySource = strings.ToLower(getenvDefault("POLICY_SOURCE", "file"))
	cfg.policyFile = getenvDefault("POLICY_FILE", "policy.yaml")
	cfg.policyRedisPrefix = getenvDefault("POLICY_REDIS_PREFIX", "throttle_config")
	cfg.policyRefresh = getenvDurationDefault("POLICY_REFRESH", 5*time.Second)

	cfg.clientKeyHeader = getenvDefault("CLIENT_KEY_HEADER", "Authorization-Token")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.trustedProxies = getenvList("TRUSTED_PROXIES")
	cfg.rejectStatus = getenvIntDefault("REJECT_STATUS", http.StatusTooManyRequests)
	cfg.quotaMessage = os.Getenv("QUOTA_MESSAGE")
	cfg.addHeaders = getenvBoolDefault("ADD_THROTTLE_HEADERS", false)
	cfg.maxInflight = getenvIntDefault("GATEWAY_MAX_INFLIGHT", 0)
	cfg.inflightTimeout = getenvDurationDefault("GATEWAY_INFLIGHT_TIMEOUT", 100*time.Millisecond)

	cfg.statsEnabled = getenvBoolDefault("THROTTLE_STATS_ENABLED", false)
	cfg.statsPrefix = getenvDefault("THROTTLE_STATS_PREFIX", "throttle:stats")
	cfg.statsTTL = getenvDurationDefault("THROTTLE_STATS_TTL", 24*time.Hour)
	cfg.statsTrackClients = getenvBoolDefault("THROTTLE_STATS_TRACK_CLIENTS", false)

	cfg.logDevelopment = getenvBoolDefault("LOG_DEVELOPMENT", false)
	cfg.logSampleRPS = getenvFloatDefault("LOG_SAMPLE_RPS", 10)
	cfg.logLabel = os.Getenv("LOG_LABEL")

	level, err := zapcore.ParseLevel(getenvDefault("LOG_LEVEL", "info"))
	if err != nil {
		return config{}, ConfigError.New("LOG_LEVEL: %w", err)
	}
	cfg.logLevel = level

	if cfg.upstreamURL == "" {
		return config{}, ConfigError.New("UPSTREAM_URL is required")
	}
	switch cfg.store {
	case "memory", "badger":
	case "redis":
		if strings.TrimSpace(cfg.redisAddr) == "" {
			return config{}, ConfigError.New("THROTTLE_REDIS_ADDR is required when THROTTLE_STORE=redis")
		}
	default:
		return config{}, ConfigError.New("THROTTLE_STORE must be memory, redis or badger, got %q", cfg.store)
	}
	switch cfg.policySource {
	case "file":
		if strings.TrimSpace(cfg.policyFile) == "" {
			return config{}, ConfigError.New("POLICY_FILE is required when POLICY_SOURCE=file")
		}
	case "redis":
		if strings.TrimSpace(cfg.redisAddr) == "" {
			return config{}, ConfigError.New("THROTTLE_REDIS_ADDR is required when POLICY_SOURCE=redis")
		}
	default:
		return config{}, ConfigError.New("POLICY_SOURCE must be file or redis, got %q", cfg.policySource)
	}
	if cfg.statsEnabled && strings.TrimSpace(cfg.redisAddr) == "" {
		return config{}, ConfigError.New("THROTTLE_REDIS_ADDR is required when THROTTLE_STATS_ENABLED=true")
	}
	if cfg.rejectStatus < 400 || cfg.rejectStatus > 599 {
		return config{}, ConfigError.New("REJECT_STATUS must be a 4xx or 5xx status, got %d", cfg.rejectStatus)
	}
	if cfg.storeMaxInflight < 0 {
		return config{}, ConfigError.New("THROTTLE_STORE_MAX_INFLIGHT must be >= 0")
	}
	if cfg.storeTimeout < 0 {
		return config{}, ConfigError.New("THROTTLE_STORE_TIMEOUT must be >= 0")
	}
	return cfg, nil
}

// needsRedis indica se algum componente usa o cliente Redis.
func (c config) needsRedis() bool {
	return c.store == "redis" || c.policySource == "redis" || c.statsEnabled
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// getenvList lê uma lista separada por vírgulas, sem itens vazios.
func getenvList(k string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(k), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
