package handler // handler defines http handlers

import (
    "errors"
    "fmt"
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/library-loans/internal/middleware"
    "github.com/iliyamo/library-loans/internal/repository"
    "github.com/iliyamo/library-loans/internal/service"
    "github.com/iliyamo/library-loans/internal/utils"
)

// errorBody is the shape of every error response.
func errorBody(msg string) echo.Map { return echo.Map{"error": msg} }

// respondError maps domain errors onto HTTP statuses.  Anything it does not
// recognise is returned as-is so the HTTP error handler can log it and answer
// 500.
func respondError(c echo.Context, err error) error {
    var (
        status int
        msg    = err.Error()
    )
    switch {
    case errors.Is(err, service.ErrValidation),
        errors.Is(err, utils.ErrPasswordTooLong):
        status = http.StatusBadRequest
    case errors.Is(err, service.ErrBookUnavailable):
        status, msg = http.StatusBadRequest, "Book not available"
    case errors.Is(err, repository.ErrBookNotFound),
        errors.Is(err, repository.ErrAuthorNotFound),
        errors.Is(err, repository.ErrUserNotFound),
        errors.Is(err, repository.ErrLoanNotFound):
        status = http.StatusNotFound
    case errors.Is(err, service.ErrNoOpenLoan):
        status, msg = http.StatusConflict, service.ErrNoOpenLoan.Error()
    case errors.Is(err, service.ErrLoanHeldByOther),
        errors.Is(err, repository.ErrUsernameTaken),
        errors.Is(err, repository.ErrConflict):
        status = http.StatusConflict
    case errors.Is(err, repository.ErrTokenInvalid):
        status = http.StatusUnauthorized
    default:
        return err
    }
    return c.JSON(status, errorBody(msg))
}

// HTTPErrorHandler renders echo errors and unexpected failures with the
// same {"error": ...} body as the handlers.
func HTTPErrorHandler(err error, c echo.Context) {
    if c.Response().Committed {
        return
    }
    code, msg := http.StatusInternalServerError, "internal server error"
    var he *echo.HTTPError
    if errors.As(err, &he) {
        code = he.Code
        msg = fmt.Sprint(he.Message)
    }
    if c.Request().Method == http.MethodHead {
        _ = c.NoContent(code)
        return
    }
    _ = c.JSON(code, errorBody(msg))
}

// getUserID returns the authenticated user id set by the JWT middleware.
func getUserID(c echo.Context) (int64, error) {
    id, ok := middleware.UserID(c)
    if !ok {
        return 0, errors.New("invalid user_id in context")
    }
    return id, nil
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (int64, bool) {
    id, err := strconv.ParseInt(c.Param(name), 10, 64)
    return id, err == nil && id > 0
}

// queryID parses an optional positive integer query parameter.  An empty
// value yields 0.
func queryID(c echo.Context, name string) (int64, error) {
    s := strings.TrimSpace(c.QueryParam(name))
    if s == "" {
        return 0, nil
    }
    id, err := strconv.ParseInt(s, 10, 64)
    if err != nil || id <= 0 {
        return 0, fmt.Errorf("%s must be a positive integer", name)
    }
    return id, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(c echo.Context, name string) (*bool, error) {
    s := strings.TrimSpace(c.QueryParam(name))
    if s == "" {
        return nil, nil
    }
    b, err := strconv.ParseBool(s)
    if err != nil {
        return nil, fmt.Errorf("%s must be a boolean", name)
    }
    return &b, nil
}
