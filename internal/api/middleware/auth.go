package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lexsign/internal/db/models"
	"github.com/lexsign/internal/services"
	"gorm.io/gorm"
)

type AuthMiddleware struct {
	authService *services.AuthService
	db          *gorm.DB
}

func NewAuthMiddleware(authService *services.AuthService, db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		db:          db,
	}
}

// RequireAuth accepts the session token either as a Bearer header (API
// clients) or the session_token cookie (browser clients).
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			var err error
			token, err = c.Cookie("session_token")
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
				return
			}
		}

		userID, valid := am.authService.IsValidSession(token)
		if !valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			return
		}

		var user models.User
		if err := am.db.First(&user, userID).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown user"})
			return
		}

		c.Set("userID", userID)
		c.Set("username", user.Username)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
