package infra

import "github.com/zeebo/errs"

var (
	// StoreError é a classe dos erros dos stores de contadores.
	StoreError = errs.Class("counter store")
	// PolicyError é a classe dos erros dos repositórios de política.
	PolicyError = errs.Class("policy repository")
)
