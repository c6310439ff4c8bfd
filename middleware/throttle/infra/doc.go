// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryCounterStore / RedisCounterStore / BadgerCounterStore: contadores
//   - Memory/Redis/FilePolicyRepository: origem da política
//   - Zap/Redis/MemoryThrottleLogger: registro de rejeições
//   - ChanPool: semáforo simples para limitar chamadas simultâneas ao store
package infra
