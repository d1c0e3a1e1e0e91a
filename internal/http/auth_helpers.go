package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"auth-gateway/internal/domain"
	"auth-gateway/internal/provider"
)

const msgPleaseLogIn = "Unauthorized - please log in"

// AuthenticatedUser resuelve el usuario del request con el proveedor.
// Cualquier fallo, incluido un panic del cliente, se reporta como (nil, false).
func AuthenticatedUser(c *gin.Context, clients provider.Factory) (user *provider.User, ok bool) {
	if clients == nil {
		return nil, false
	}
	defer func() {
		if recover() != nil {
			user, ok = nil, false
		}
	}()

	user, err := clients.ForRequest(c.Writer, c.Request).GetUser(c.Request.Context())
	if err != nil || user == nil {
		return nil, false
	}
	return user, true
}

// UnauthorizedResponse responde el 401 estandar para rutas protegidas.
func UnauthorizedResponse(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, domain.ErrorPayload{Error: msgPleaseLogIn})
}
