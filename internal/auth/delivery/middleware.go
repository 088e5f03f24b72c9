package delivery

import (
	"net/http"
	"strings"

	authdomain "github.com/kdrangari/msgtracker-api/internal/auth/domain"
	"github.com/kdrangari/msgtracker-api/internal/auth/repository"

	"github.com/gin-gonic/gin"
)

const (
	UserHeader = "x-user-email"
	contextKey = "user"
)

// UserContextMiddleware resolves the caller from the x-user-email header,
// creating the user on first sight. Requests without the header pass through
// anonymously; RequireUser rejects them.
func UserContextMiddleware(userRepo repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := strings.TrimSpace(c.GetHeader(UserHeader))
		if email == "" {
			c.Next()
			return
		}

		user, err := userRepo.FindOrCreateByEmail(c.Request.Context(), email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
			c.Abort()
			return
		}

		c.Set(contextKey, user)
		c.Next()
	}
}

func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "x-user-email header required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user set by UserContextMiddleware, or nil.
func CurrentUser(c *gin.Context) *authdomain.User {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*authdomain.User)
	return user
}

// Me handles GET /me.
func Me(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": user})
}
