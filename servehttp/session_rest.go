package servehttp

import (
	"net/http"
	"time"

	"stateflow/bizerror"
	"stateflow/session"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// RegisterSessionsHandler mounts login and logout, the only routes
// reachable without a session token, plus the session detail route.
func RegisterSessionsHandler(r *gin.Engine) {
	g := r.Group("/v1/sessions")
	g.POST("", handleLogin)
	g.DELETE("", handleLogout)

	r.GET("/v1/session", session.SimpleAuthFilter(), handleDetailSession)
}

func handleLogin(c *gin.Context) {
	login := session.LoginRequest{}
	if err := c.ShouldBindBodyWith(&login, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	secCtx, err := session.AuthenticateFunc(c.Request.Context(), login.Name, login.Password)
	if err != nil {
		panic(err)
	}

	secCtx.Token = uuid.New().String()
	session.TokenCache.Set(secCtx.Token, secCtx, cache.DefaultExpiration)

	c.SetCookie(session.KeySecToken, secCtx.Token, int(session.TokenExpiration/time.Second), "/", "", false, false)
	c.JSON(http.StatusOK, secCtx)
}

func handleLogout(c *gin.Context) {
	token, _ := c.Cookie(session.KeySecToken)
	if token != "" {
		session.TokenCache.Delete(token)
	}
	c.SetCookie(session.KeySecToken, "", -1, "/", "", false, false)
	c.AbortWithStatus(http.StatusNoContent)
}

// handleDetailSession returns the bound context and renews its expiry.
func handleDetailSession(c *gin.Context) {
	secCtx := session.FindSecurityContext(c)
	if secCtx == nil {
		panic(bizerror.ErrUnauthenticated)
	}
	session.TokenCache.Set(secCtx.Token, secCtx, cache.DefaultExpiration)
	c.JSON(http.StatusOK, secCtx)
}
