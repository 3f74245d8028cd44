package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-loans/internal/handler"
	"github.com/iliyamo/library-loans/internal/middleware"
	"github.com/iliyamo/library-loans/internal/model"
)

// RegisterCatalog registers author and book endpoints.  Every route needs a
// valid JWT; reads are cached, writes need the admin role.  Middleware is
// attached per route because a root-level group would also claim unmatched
// paths.
func RegisterCatalog(e *echo.Echo, h *handler.CatalogHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	auth := middleware.JWTAuth(jwtSecret)
	admin := middleware.RequireRole(model.RoleAdmin)

	// ---- Authors ----
	e.GET("/authors", h.ListAuthors, auth, cache)
	e.GET("/authors/:id", h.GetAuthor, auth, cache)
	e.POST("/authors", h.CreateAuthor, auth, admin)
	e.DELETE("/authors/:id", h.DeleteAuthor, auth, admin)

	// ---- Books ----
	e.GET("/books", h.ListBooks, auth, cache)
	e.GET("/books/:id", h.GetBook, auth, cache)
	e.POST("/books", h.CreateBook, auth, admin)
	e.DELETE("/books/:id", h.DeleteBook, auth, admin)
}
