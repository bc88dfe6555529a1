package extension

import (
	"fmt"
	"stateflow/bizerror"
	"stateflow/domain"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprHandler vetoes transitions with a boolean expr-lang rule evaluated
// against the transition. The rule must evaluate to true for the
// transition to pass. Compiled programs are cached per expression.
type ExprHandler struct {
	Expression string

	cache map[string]*vm.Program
	mu    sync.RWMutex
}

func NewExprHandler(expression string) *ExprHandler {
	return &ExprHandler{Expression: expression, cache: map[string]*vm.Program{}}
}

func (h *ExprHandler) Veto(t *domain.Transition) error {
	env := map[string]interface{}{
		"workflowId": uint64(t.WorkflowID),
		"fromSid":    uint64(t.FromSID),
		"toSid":      uint64(t.ToSID),
		"targetType": t.TargetType,
		"field":      t.Field,
		"comment":    t.Comment,
		"forced":     t.Forced,
		"scheduled":  t.Scheduled,
	}

	h.mu.RLock()
	program, ok := h.cache[h.Expression]
	h.mu.RUnlock()

	if !ok {
		h.mu.Lock()
		var err error
		if program, ok = h.cache[h.Expression]; !ok {
			program, err = expr.Compile(h.Expression, expr.Env(env), expr.AsBool())
			if err != nil {
				h.mu.Unlock()
				return err
			}
			h.cache[h.Expression] = program
		}
		h.mu.Unlock()
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return err
	}
	allowed, ok := output.(bool)
	if !ok {
		return fmt.Errorf("expression %q did not evaluate to a boolean", h.Expression)
	}
	if !allowed {
		return bizerror.ErrVetoedByExtension
	}
	return nil
}

func (h *ExprHandler) AlterComment(t *domain.Transition) (string, bool) {
	return "", false
}
