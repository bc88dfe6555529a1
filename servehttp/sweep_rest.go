package servehttp

import (
	"net/http"
	"stateflow/bizerror"
	"stateflow/domain/item"
	"stateflow/domain/sweep"
	"stateflow/domain/transit"
	"stateflow/session"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

func RegisterSweepHandler(r *gin.Engine, engine *transit.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group("/v1/sweeps", middleWares...)

	handler := &sweepHandler{engine: engine}
	g.POST("", handler.handleRunSweep)
}

type sweepHandler struct {
	engine *transit.Engine
}

type sweepRequest struct {
	WindowStart time.Time `json:"windowStart" binding:"required"`
	WindowEnd   time.Time `json:"windowEnd" binding:"required"`
}

// handleRunSweep triggers one sweep over an explicit window, for operators
// and for deployments without the cron trigger.
func (h *sweepHandler) handleRunSweep(c *gin.Context) {
	sec := session.FindSecurityContext(c)
	if sec == nil || !sec.Perms.HasAdminRole() {
		panic(bizerror.ErrForbidden)
	}

	request := sweepRequest{}
	if err := c.ShouldBindBodyWith(&request, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	report, err := sweep.RunSweepFunc(c.Request.Context(), h.engine, item.ResolveTarget,
		request.WindowStart, request.WindowEnd)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, report)
}
