package testinfra

import (
	"net/http"
	"net/http/httptest"
	"stateflow/authority"
	"stateflow/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
)

// BuildSecCtx builds a security context carrying the given permissions.
func BuildSecCtx(uid types.ID, perms ...string) *session.Context {
	return &session.Context{
		Token:       uuidLikeToken(uid),
		Identity:    session.Identity{ID: uid, Name: "user" + uid.String()},
		Perms:       authority.Permissions(perms),
		SigningTime: time.Now(),
	}
}

func uuidLikeToken(uid types.ID) string {
	return "test-token-" + uid.String()
}

// ExecuteRequest runs the request through the router and returns status,
// body and headers of the recorded response.
func ExecuteRequest(req *http.Request, router *gin.Engine) (int, string, http.Header) {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code, w.Body.String(), w.Header()
}

// InjectSecCtx is a test middleware binding a fixed security context to
// every request, in place of the cookie-based auth filter.
func InjectSecCtx(sec *session.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		session.SaveSecurityContext(c, sec)
		c.Next()
	}
}
