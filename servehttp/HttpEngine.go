package servehttp

import (
	"net/http"
	"stateflow/bizerror"
	"stateflow/infra/tracing"

	"github.com/gin-gonic/gin"
)

func NewHTTPEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), tracing.TracingIngress(), bizerror.ErrorHandling())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "stateflow")
	})
	return engine
}
