// Package throttle fornece o adapter HTTP (net/http) do throttling por janelas
// fixas (segundo, minuto, hora, dia, semana).
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: engine, regras, whitelist e o Service (sem net/http)
//   - infra: stores de contadores (memória, Redis, Badger), repositórios de
//     política e loggers de rejeição
//   - throttle (este pacote): RequestAdapter, middleware HTTP e métricas
//
// Fluxo no gateway:
//
//  1. O RequestAdapter extrai a identidade (IP, chave do cliente, endpoint)
//  2. O Service busca a política, avalia e loga a rejeição
//  3. Se bloqueado, responde 429 com Retry-After e a mensagem de cota
//  4. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o
// comportamento, como THROTTLE_STORE, POLICY_FILE e CLIENT_KEY_HEADER.
package throttle
