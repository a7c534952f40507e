// internal/middleware/auth.go
package middleware

import (
	"net/http"
	"strings"

	"github.com/vetlink/vetlink-backend/internal/i18n"
	"github.com/vetlink/vetlink-backend/internal/models"
	"github.com/vetlink/vetlink-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := c.GetHeader("Accept-Language")
		if lang == "" {
			lang = "pt_BR"
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": i18n.T(lang, i18n.KeyAuthRequired),
			})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": i18n.T(lang, i18n.KeyAuthInvalidToken),
			})
			c.Abort()
			return
		}

		token := parts[1]
		claims, err := utils.ValidateJWT(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": i18n.T(lang, i18n.KeyAuthTokenExpired),
			})
			c.Abort()
			return
		}

		// Set user info in context
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("clinic_id", claims.ClinicID)
		c.Set("roles", claims.Roles)
		c.Next()
	}
}

// ClinicAdminRequired guards rule administration and closing runs.
func ClinicAdminRequired() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		lang := c.GetHeader("Accept-Language")
		if lang == "" {
			lang = "pt_BR"
		}

		roles, exists := utils.GetRolesFromContext(c)
		if !exists || !hasRole(roles, models.RoleClinicAdmin) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": i18n.T(lang, i18n.KeyAdminAccessDenied),
			})
			c.Abort()
			return
		}
		c.Next()
	})
}

func hasRole(roles []string, role models.ProfessionalRole) bool {
	for _, r := range roles {
		if r == string(role) {
			return true
		}
	}
	return false
}
