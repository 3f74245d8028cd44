package middleware

// identity.go holds helpers that read the caller's identity from the echo
// context after JWTAuth has run.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// UserID returns the authenticated user id, if any.
func UserID(c echo.Context) (int64, bool) {
    id, ok := c.Get(CtxUserID).(int64)
    return id, ok && id > 0
}

// Role returns the authenticated role or "".
func Role(c echo.Context) string {
    r, _ := c.Get(CtxRole).(string)
    return r
}

// identityKey is the caller's id as a key fragment; "anon" when the request
// is unauthenticated.
func identityKey(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return strconv.FormatInt(id, 10)
    }
    return "anon"
}
