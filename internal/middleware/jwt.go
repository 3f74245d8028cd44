package middleware // package middleware holds reusable echo middleware

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/library-loans/internal/utils"
)

// Context keys set by JWTAuth.
const (
    CtxUserID   = "user_id"  // int64
    CtxUsername = "username" // string
    CtxRole     = "role"     // string
)

// JWTAuth validates a Bearer access token and stores the subject, username
// and role claims in the request context.  Handlers read them back with
// c.Get(CtxUserID) and friends.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get(echo.HeaderAuthorization)
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            claims, err := utils.ParseAccessToken(secret, strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            uid, _ := claims.UserID() // validated by ParseAccessToken

            c.Set(CtxUserID, uid)
            c.Set(CtxUsername, claims.Username)
            c.Set(CtxRole, claims.Role)
            return next(c)
        }
    }
}
