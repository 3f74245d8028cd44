package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/library-loans/internal/database"
)

// Health reports that the process is up.  It does not touch the database.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

// Ready pings the database and answers 503 when it is unreachable.
func Ready(db *database.DB) echo.HandlerFunc {
    return func(c echo.Context) error {
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()
        if err := db.PingContext(ctx); err != nil {
            return c.JSON(http.StatusServiceUnavailable, errorBody("database unavailable"))
        }
        return c.String(http.StatusOK, "ready")
    }
}
