package knowledge

import "strings"

// DefaultTriggerTerms are the query fragments that signal a lookup in
// tables, annexes, or formulary sections of the corpus, where tree
// navigation outperforms flat similarity search. The corpus is
// Portuguese-language veterinary reference material, so the defaults
// are Portuguese. Deployments can override the list via configuration.
var DefaultTriggerTerms = []string{
	"tabela", "anexo", "apêndice", "quadro", "figura",
	"protocolo", "dose", "dosagem", "posologia",
	"cálculo", "fórmula", "valor", "referência",
	"seção", "capítulo", "página", "item", "sumário", "índice",
}

// Router decides which retrieval strategy serves a query. Resolution is
// a pure function of the query text and the requested mode; it performs
// no I/O and is safe for concurrent use.
type Router struct {
	triggers []string
}

// NewRouter creates a Router with the given trigger vocabulary.
// An empty list falls back to DefaultTriggerTerms.
func NewRouter(triggers []string) *Router {
	if len(triggers) == 0 {
		triggers = DefaultTriggerTerms
	}
	lowered := make([]string, len(triggers))
	for i, t := range triggers {
		lowered[i] = strings.ToLower(t)
	}
	return &Router{triggers: lowered}
}

// Resolve maps a requested mode to the mode that will execute.
// Explicit vector, structural, and hybrid requests are honored as-is.
// Auto resolves to structural when the query contains a trigger term
// and to vector otherwise; auto never resolves to hybrid.
func (r *Router) Resolve(query string, requested Mode) (Mode, error) {
	switch requested {
	case ModeVector, ModeStructural, ModeHybrid:
		return requested, nil
	case ModeAuto, "":
		if r.triggered(query) {
			return ModeStructural, nil
		}
		return ModeVector, nil
	default:
		return "", ErrInvalidMode
	}
}

func (r *Router) triggered(query string) bool {
	q := strings.ToLower(query)
	for _, term := range r.triggers {
		if strings.Contains(q, term) {
			return true
		}
	}
	return false
}
