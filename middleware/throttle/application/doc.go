// Package application contém o núcleo do throttling: derivação de chaves,
// resolução de limites e regras, whitelist, o Engine que avalia uma requisição
// contra todas as janelas e o Service que amarra política, engine e log.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(ctx, req) retorna um Verdict (allow/deny + retry-after).
package application
