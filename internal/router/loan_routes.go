package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-loans/internal/handler"
	"github.com/iliyamo/library-loans/internal/middleware"
	"github.com/iliyamo/library-loans/internal/model"
)

// RegisterLoans registers the ledger endpoints.  Borrow and return take the
// user in the body and need no token; listing the ledger does.
func RegisterLoans(e *echo.Echo, h *handler.LoanHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	e.POST("/borrow", h.Borrow, limit)
	e.POST("/return", h.Return, limit)

	auth := middleware.JWTAuth(jwtSecret)
	e.GET("/loans", h.ListLoans, auth, middleware.RequireRole(model.RoleAdmin))
	e.GET("/me/loans", h.MyLoans, auth)
}
