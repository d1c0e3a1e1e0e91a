package http

import (
	"github.com/gin-gonic/gin"

	"auth-gateway/internal/provider"
)

const authUserKey = "auth_user"

// RequireUser exige un usuario autenticado y lo guarda en el contexto.
func RequireUser(clients provider.Factory) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := AuthenticatedUser(c, clients)
		if !ok {
			UnauthorizedResponse(c)
			return
		}

		c.Set(authUserKey, user)
		c.Next()
	}
}

// CurrentUser obtiene el usuario guardado por RequireUser.
func CurrentUser(c *gin.Context) (*provider.User, bool) {
	val, ok := c.Get(authUserKey)
	if !ok {
		return nil, false
	}
	user, ok := val.(*provider.User)
	return user, ok && user != nil
}
