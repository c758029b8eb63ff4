package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/hydrajobs/hydra/internal/transport/http/middleware"
	"github.com/hydrajobs/hydra/internal/usecase"
)

// scopeFrom rebuilds the caller scope the auth middleware stored.
// Explicit records whether the request named a domain itself, which is
// what keeps admin reads scoped instead of fleet wide.
func scopeFrom(c *gin.Context) usecase.Scope {
	return usecase.Scope{
		Domain:   c.GetString(middleware.CtxDomain),
		Admin:    c.GetBool(middleware.CtxIsAdmin),
		Explicit: c.Query("domain") != "",
	}
}
