package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/library-loans/internal/repository"
    "github.com/iliyamo/library-loans/internal/service"
)

// LoanHandler exposes the loan ledger.
type LoanHandler struct {
    Ledger *service.Ledger
}

func NewLoanHandler(l *service.Ledger) *LoanHandler { return &LoanHandler{Ledger: l} }

type loanReq struct {
    UserID int64 `json:"user_id" validate:"required,gt=0"`
    BookID int64 `json:"book_id" validate:"required,gt=0"`
}

// Borrow handles POST /borrow.
func (h *LoanHandler) Borrow(c echo.Context) error {
    var req loanReq
    if ok, err := bindValid(c, &req); !ok {
        return err
    }
    ctx, cancel := timeout(c)
    defer cancel()
    loan, err := h.Ledger.Borrow(ctx, req.UserID, req.BookID)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Book borrowed successfully", "loan": loan})
}

// Return handles POST /return.  With the lenient policy loan may be null.
func (h *LoanHandler) Return(c echo.Context) error {
    var req loanReq
    if ok, err := bindValid(c, &req); !ok {
        return err
    }
    ctx, cancel := timeout(c)
    defer cancel()
    loan, err := h.Ledger.Return(ctx, req.UserID, req.BookID)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Book returned successfully", "loan": loan})
}

// ListLoans handles GET /loans?user_id=&book_id=&open= for admins.
func (h *LoanHandler) ListLoans(c echo.Context) error {
    userID, err := queryID(c, "user_id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
    }
    return h.list(c, userID)
}

// MyLoans handles GET /me/loans?book_id=&open=.
func (h *LoanHandler) MyLoans(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
    }
    return h.list(c, uid)
}

func (h *LoanHandler) list(c echo.Context, userID int64) error {
    bookID, err := queryID(c, "book_id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
    }
    open, err := queryBool(c, "open")
    if err != nil {
        return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
    }
    f := repository.LoanFilter{UserID: userID, BookID: bookID, OpenOnly: open != nil && *open}
    ctx, cancel := timeout(c)
    defer cancel()
    loans, err := h.Ledger.ListLoans(ctx, f)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, loans)
}
