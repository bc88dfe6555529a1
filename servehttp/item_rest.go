package servehttp

import (
	"net/http"
	"stateflow/bizerror"
	"stateflow/domain/item"
	"stateflow/session"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

func RegisterItemHandler(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group("/v1/items", middleWares...)

	handler := &itemHandler{}

	g.POST("", handler.handleCreateItem)
	g.GET("", handler.handleQueryItems)
	g.GET(":id", handler.handleDetailItem)
}

type itemHandler struct {
}

func (h *itemHandler) handleCreateItem(c *gin.Context) {
	creation := item.ItemCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	detail, err := item.CreateItemFunc(c.Request.Context(), &creation, session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, detail)
}

func (h *itemHandler) handleQueryItems(c *gin.Context) {
	query := item.ItemQuery{}
	_ = c.MustBindWith(&query, binding.Query)

	items, err := item.QueryItemsFunc(c.Request.Context(), &query)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, items)
}

func (h *itemHandler) handleDetailItem(c *gin.Context) {
	detail, err := item.DetailItemFunc(c.Request.Context(), parseIdParam(c, "id"))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, detail)
}
