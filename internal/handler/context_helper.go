package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campus-dev/sis-api/internal/middleware"
	"github.com/campus-dev/sis-api/internal/models"
)

// claimsFromContext pulls the authenticated claims stored by the JWT
// middleware. Returns nil on unauthenticated routes.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}
