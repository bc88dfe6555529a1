package extension

import (
	"stateflow/domain"
)

// Handler is one registered extension point. Veto returns a non-nil error
// to abort a state-changing transition; AlterComment may replace the
// transition's comment before it is recorded.
type Handler interface {
	Veto(t *domain.Transition) error
	AlterComment(t *domain.Transition) (string, bool)
}

// Registry is the ordered list of handlers, composed at engine
// construction time.
type Registry struct {
	handlers []Handler
}

func NewRegistry(handlers ...Handler) *Registry {
	return &Registry{handlers: handlers}
}

func (r *Registry) Register(h Handler) {
	r.handlers = append(r.handlers, h)
}

// Veto runs the handlers in registration order; the first deny wins.
func (r *Registry) Veto(t *domain.Transition) error {
	if r == nil {
		return nil
	}
	for _, h := range r.handlers {
		if err := h.Veto(t); err != nil {
			return err
		}
	}
	return nil
}

// AlterComment applies every handler's comment rewrite in order.
func (r *Registry) AlterComment(t *domain.Transition) {
	if r == nil {
		return
	}
	for _, h := range r.handlers {
		if comment, altered := h.AlterComment(t); altered {
			t.Comment = comment
		}
	}
}

// HandlerFuncs adapts plain functions to a Handler.
type HandlerFuncs struct {
	VetoFunc         func(t *domain.Transition) error
	AlterCommentFunc func(t *domain.Transition) (string, bool)
}

func (f HandlerFuncs) Veto(t *domain.Transition) error {
	if f.VetoFunc == nil {
		return nil
	}
	return f.VetoFunc(t)
}

func (f HandlerFuncs) AlterComment(t *domain.Transition) (string, bool) {
	if f.AlterCommentFunc == nil {
		return "", false
	}
	return f.AlterCommentFunc(t)
}
