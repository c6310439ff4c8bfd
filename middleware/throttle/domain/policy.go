package domain

// PolicyKey é a chave bem conhecida sob a qual a política ativa é salva no
// repositório de políticas.
const PolicyKey = "throttle_policy"

// Rate é o limite de requisições para um período.
type Rate struct {
	Period Period `json:"period" yaml:"period"`
	Limit  int64  `json:"limit" yaml:"limit"`
}

// Rule sobrescreve os limites padrão para quem casar com Pattern.
// Um limite <= 0 significa "sem limite" para aquele período.
type Rule struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Rates   []Rate `json:"rates" yaml:"rates"`
}

// Limit retorna o limite da regra para o período, se ela definir um.
func (r Rule) Limit(p Period) (int64, bool) {
	for _, rate := range r.Rates {
		if rate.Period == p {
			return rate.Limit, true
		}
	}
	return 0, false
}

// Policy é a configuração declarativa do throttling.
//
// Rates mantém a ordem de inserção; com StackBlockedRequests a avaliação
// percorre a lista ao contrário (semana -> segundo).
type Policy struct {
	IPThrottling         bool `json:"ip_throttling" yaml:"ip_throttling"`
	ClientThrottling     bool `json:"client_throttling" yaml:"client_throttling"`
	EndpointThrottling   bool `json:"endpoint_throttling" yaml:"endpoint_throttling"`
	StackBlockedRequests bool `json:"stack_blocked_requests" yaml:"stack_blocked_requests"`

	Rates []Rate `json:"rates" yaml:"rates"`

	IPRules       []Rule `json:"ip_rules,omitempty" yaml:"ip_rules,omitempty"`
	ClientRules   []Rule `json:"client_rules,omitempty" yaml:"client_rules,omitempty"`
	EndpointRules []Rule `json:"endpoint_rules,omitempty" yaml:"endpoint_rules,omitempty"`

	IPWhitelist       []string `json:"ip_whitelist,omitempty" yaml:"ip_whitelist,omitempty"`
	ClientWhitelist   []string `json:"client_whitelist,omitempty" yaml:"client_whitelist,omitempty"`
	EndpointWhitelist []string `json:"endpoint_whitelist,omitempty" yaml:"endpoint_whitelist,omitempty"`
}

// Enabled é falso quando nenhuma dimensão de throttling está ligada; nesse
// caso toda requisição é permitida.
func (p *Policy) Enabled() bool {
	return p != nil && (p.IPThrottling || p.ClientThrottling || p.EndpointThrottling)
}

// Validate rejeita períodos inválidos ou repetidos nos limites e nas regras.
func (p *Policy) Validate() error {
	if p == nil {
		return Error.New("nil policy")
	}
	if err := validateRates("rates", p.Rates); err != nil {
		return err
	}
	for _, group := range []struct {
		name  string
		rules []Rule
	}{
		{"ip_rules", p.IPRules},
		{"client_rules", p.ClientRules},
		{"endpoint_rules", p.EndpointRules},
	} {
		for i, rule := range group.rules {
			if rule.Pattern == "" {
				return Error.New("%s[%d]: empty pattern", group.name, i)
			}
			if err := validateRates(group.name+"["+rule.Pattern+"]", rule.Rates); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateRates(where string, rates []Rate) error {
	seen := make(map[Period]bool, len(rates))
	for _, r := range rates {
		if !r.Period.Valid() {
			return Error.New("%s: invalid period %d", where, int(r.Period))
		}
		if seen[r.Period] {
			return Error.New("%s: duplicate period %s", where, r.Period)
		}
		seen[r.Period] = true
	}
	return nil
}

// Clone faz uma cópia profunda. Políticas são trocadas, nunca alteradas no lugar.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	out := *p
	out.Rates = append([]Rate(nil), p.Rates...)
	out.IPRules = cloneRules(p.IPRules)
	out.ClientRules = cloneRules(p.ClientRules)
	out.EndpointRules = cloneRules(p.EndpointRules)
	out.IPWhitelist = append([]string(nil), p.IPWhitelist...)
	out.ClientWhitelist = append([]string(nil), p.ClientWhitelist...)
	out.EndpointWhitelist = append([]string(nil), p.EndpointWhitelist...)
	return &out
}

func cloneRules(src []Rule) []Rule {
	if src == nil {
		return nil
	}
	out := make([]Rule, len(src))
	for i, r := range src {
		out[i] = Rule{Pattern: r.Pattern, Rates: append([]Rate(nil), r.Rates...)}
	}
	return out
}
