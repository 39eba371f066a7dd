package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"quiz-proctor-service/internal/auth"
)

const contextKeyClaims = "claims"

// RequireInstructor accepts a Bearer token issued by the instructor login.
func RequireInstructor(authenticator *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abortFail(c, http.StatusUnauthorized, ErrTokenRequired)
			return
		}
		claims, err := authenticator.Verify(token)
		if err != nil {
			abortFail(c, http.StatusUnauthorized, ErrTokenInvalid)
			return
		}
		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
