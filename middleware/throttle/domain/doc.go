// Package domain define os tipos e contratos do throttling (períodos, identidade,
// política, contadores, veredito) e as interfaces que a infraestrutura implementa.
//
// Este pacote não depende de net/http nem de implementações concretas de storage.
// A ideia é manter as regras testáveis de forma pura e desacopladas dos backends
// (memória, Redis, Badger).
package domain
