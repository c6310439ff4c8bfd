package domain

import (
	"strconv"

	"github.com/zeebo/errs"
)

// Error é a classe de erros do domínio (validação de política, parsing).
var Error = errs.Class("throttle")

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }
