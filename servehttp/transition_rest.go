package servehttp

import (
	"net/http"
	"stateflow/bizerror"
	"stateflow/common"
	"stateflow/domain"
	"stateflow/domain/graph"
	"stateflow/domain/item"
	"stateflow/domain/transit"
	"stateflow/event"
	"stateflow/indices"
	"stateflow/persistence"
	"stateflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func RegisterTransitionHandler(r *gin.Engine, engine *transit.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group("/v1/items", middleWares...)

	handler := &transitionHandler{validator: validator.New(), engine: engine}

	g.POST(":id/transitions", handler.handleCreateTransition)
	g.GET(":id/transitions", handler.handleQueryTransitions)
	g.GET(":id/schedules", handler.handleQuerySchedules)
}

type transitionHandler struct {
	validator *validator.Validate
	engine    *transit.Engine
}

type transitionResult struct {
	ResultSID       types.ID           `json:"resultSid"`
	Scheduled       bool               `json:"scheduled"`
	CommentRequired bool               `json:"commentRequired"`
	Transition      *domain.Transition `json:"transition"`
}

func indexExecutedTransition(t *domain.Transition) error {
	return indices.IndexTransitionRecordFunc(&domain.TransitionRecord{Transition: *t})
}

func (h *transitionHandler) handleCreateTransition(c *gin.Context) {
	creation := transit.TransitionCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	sec := session.FindSecurityContext(c)
	if sec == nil {
		panic(bizerror.ErrUnauthenticated)
	}

	ctx := c.Request.Context()
	target, err := item.DetailItemFunc(ctx, parseIdParam(c, "id"))
	if err != nil {
		panic(err)
	}

	t, err := h.engine.NewTransition(ctx, &creation, target, sec.Identity.ID)
	if err != nil {
		panic(err)
	}
	if !h.engine.Valid(ctx, t, target, sec.Actor()) {
		_ = event.CreateEvent(t.TargetType, t.TargetID, t.Field, event.CategoryTransitionDenied,
			[]event.Property{{Name: "state", OldValue: t.FromSID.String(), NewValue: t.ToSID.String()}},
			sec.Identity.ID, sec.Identity.Name, persistence.ActiveDataSourceManager.GormDB(ctx))
		panic(bizerror.ErrForbidden)
	}

	sid, err := h.engine.ExecuteAndUpdateTarget(ctx, t, target, false, transit.NewDedup())
	if err != nil {
		panic(err)
	}
	if t.Executed {
		if err := indexExecutedTransition(t); err != nil {
			common.Log.Warnf("transition indexing failed: %v", err)
		}
	}

	commentLevel, err := graph.CommentLevelOf(ctx, t.WorkflowID)
	if err != nil {
		panic(err)
	}

	c.JSON(http.StatusCreated, &transitionResult{
		ResultSID:       sid,
		Scheduled:       t.Scheduled,
		CommentRequired: commentLevel == domain.CommentRequired,
		Transition:      t,
	})
}

func (h *transitionHandler) handleQueryTransitions(c *gin.Context) {
	records, err := transit.QueryHistoryFunc(c.Request.Context(), domain.ItemTargetType, parseIdParam(c, "id"))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, records)
}

func (h *transitionHandler) handleQuerySchedules(c *gin.Context) {
	pending, err := transit.QuerySchedulesFunc(c.Request.Context(), domain.ItemTargetType, parseIdParam(c, "id"))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, pending)
}
