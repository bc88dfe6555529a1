package servehttp

import (
	"errors"
	"net/http"
	"stateflow/bizerror"
	"stateflow/common"
	"stateflow/domain"
	"stateflow/domain/graph"
	"stateflow/domain/item"
	"stateflow/domain/transit"
	"stateflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func RegisterWorkflowHandler(r *gin.Engine, engine *transit.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group("/v1/workflows", middleWares...)

	handler := &workflowHandler{validator: validator.New(), engine: engine}

	g.POST("", handler.handleCreateWorkflow)
	g.GET("", handler.handleQueryWorkflows)
	g.GET(":flowId", handler.handleDetailWorkflow)
	g.PUT(":flowId", handler.handleUpdateWorkflowBase)
	g.DELETE(":flowId", handler.handleDeleteWorkflow)

	g.GET(":flowId/states", handler.handleQueryStates)
	g.POST(":flowId/states", handler.handleCreateState)
	g.PUT(":flowId/states", handler.handleUpdateState)
	g.PUT(":flowId/state-weights", handler.handleUpdateStateWeights)
	g.POST(":flowId/states/:sid/deactivate", handler.handleDeactivateState)

	g.GET(":flowId/edges", handler.handleQueryEdges)
	g.POST(":flowId/edges", handler.handleCreateEdge)
	g.DELETE(":flowId/edges", handler.handleDeleteEdge)
}

type workflowHandler struct {
	validator *validator.Validate
	engine    *transit.Engine
}

func parseIdParam(c *gin.Context, name string) types.ID {
	id, err := types.ParseID(c.Param(name))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	return id
}

func (h *workflowHandler) handleQueryWorkflows(c *gin.Context) {
	query := graph.WorkflowQuery{}
	_ = c.MustBindWith(&query, binding.Query)

	flows, err := graph.QueryWorkflowsFunc(c.Request.Context(), &query)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, flows)
}

func (h *workflowHandler) handleCreateWorkflow(c *gin.Context) {
	creation := graph.WorkflowCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	workflow, err := graph.CreateWorkflowFunc(c.Request.Context(), &creation, session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, workflow)
}

func (h *workflowHandler) handleDetailWorkflow(c *gin.Context) {
	detail, err := graph.DetailWorkflowFunc(c.Request.Context(), parseIdParam(c, "flowId"))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, detail)
}

func (h *workflowHandler) handleUpdateWorkflowBase(c *gin.Context) {
	updating := graph.WorkflowBaseUpdation{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	workflow, err := graph.UpdateWorkflowBaseFunc(c.Request.Context(), parseIdParam(c, "flowId"), &updating, session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, workflow)
}

func (h *workflowHandler) handleDeleteWorkflow(c *gin.Context) {
	if err := graph.DeleteWorkflowFunc(c.Request.Context(), parseIdParam(c, "flowId"), session.FindSecurityContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusNoContent)
}

type stateQuery struct {
	Filter string `form:"filter"`
}

func (h *workflowHandler) handleQueryStates(c *gin.Context) {
	query := stateQuery{}
	_ = c.MustBindWith(&query, binding.Query)

	filter := domain.StatesAll
	switch query.Filter {
	case "", "all":
	case "active":
		filter = domain.StatesActiveNonCreation
	case "reachable":
		filter = domain.StatesActiveOrCreation
	default:
		panic(&bizerror.ErrBadParam{Cause: errors.New("unknown state filter " + query.Filter)})
	}

	detail, err := graph.DetailWorkflowFunc(c.Request.Context(), parseIdParam(c, "flowId"))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, graph.StatesOf(detail, filter))
}

func (h *workflowHandler) handleCreateState(c *gin.Context) {
	creating := graph.StateCreating{}
	if err := c.ShouldBindBodyWith(&creating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	state, err := graph.CreateStateFunc(c.Request.Context(), parseIdParam(c, "flowId"), &creating, session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, state)
}

func (h *workflowHandler) handleUpdateState(c *gin.Context) {
	updating := graph.StateUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	if err := graph.UpdateStateFunc(c.Request.Context(), parseIdParam(c, "flowId"), &updating, session.FindSecurityContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusOK)
}

func (h *workflowHandler) handleUpdateStateWeights(c *gin.Context) {
	var updating []graph.StateWeightUpdating
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	for _, u := range updating {
		if err := h.validator.Struct(u); err != nil {
			panic(&bizerror.ErrBadParam{Cause: err})
		}
	}

	if err := graph.UpdateStateWeightsFunc(c.Request.Context(), parseIdParam(c, "flowId"), &updating, session.FindSecurityContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusOK)
}

type stateDeactivation struct {
	ReplacementSID types.ID `json:"replacementSid" binding:"required"`
}

func (h *workflowHandler) handleDeactivateState(c *gin.Context) {
	deactivation := stateDeactivation{}
	if err := c.ShouldBindBodyWith(&deactivation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	report, err := h.engine.DeactivateState(c.Request.Context(), parseIdParam(c, "flowId"), parseIdParam(c, "sid"),
		deactivation.ReplacementSID, item.ResolveTarget, session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, report)
}

type edgeQuery struct {
	FromSID types.ID `form:"fromSid"`
	ToSID   types.ID `form:"toSid"`
}

func (h *workflowHandler) handleQueryEdges(c *gin.Context) {
	query := edgeQuery{}
	_ = c.MustBindWith(&query, binding.Query)

	detail, err := graph.DetailWorkflowFunc(c.Request.Context(), parseIdParam(c, "flowId"))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, graph.Edges(detail, query.FromSID, query.ToSID))
}

func (h *workflowHandler) handleCreateEdge(c *gin.Context) {
	creation := graph.EdgeCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	edge, err := graph.CreateEdgeFunc(c.Request.Context(), parseIdParam(c, "flowId"), &creation, session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, edge)
}

func (h *workflowHandler) handleDeleteEdge(c *gin.Context) {
	query := edgeQuery{}
	_ = c.MustBindWith(&query, binding.Query)
	if query.FromSID == 0 || query.ToSID == 0 {
		panic(&bizerror.ErrBadParam{Cause: common.ErrEdgeEndpointsRequired})
	}

	if err := graph.DeleteEdgeFunc(c.Request.Context(), parseIdParam(c, "flowId"), query.FromSID, query.ToSID, session.FindSecurityContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusNoContent)
}
