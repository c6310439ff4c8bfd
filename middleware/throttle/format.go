package throttle

import (
	"strconv"
	"strings"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// DefaultQuotaExceededMessage é a mensagem padrão de rejeição.
const DefaultQuotaExceededMessage = "API calls quota exceeded! maximum admitted {limit} per {period}."

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }

// FormatQuotaMessage preenche {limit} e {period} no template. Os marcadores
// posicionais {0} (limite) e {1} (período) também são aceitos.
func FormatQuotaMessage(template string, limit int64, period domain.Period) string {
	if template == "" {
		template = DefaultQuotaExceededMessage
	}
	l, p := formatInt64(limit), period.String()
	return strings.NewReplacer(
		"{limit}", l,
		"{period}", p,
		"{0}", l,
		"{1}", p,
	).Replace(template)
}
