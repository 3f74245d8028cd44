package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/library-loans/internal/model"
    "github.com/iliyamo/library-loans/internal/repository"
)

// CatalogHandler serves authors and books.
type CatalogHandler struct {
    Authors *repository.AuthorRepo
    Books   *repository.BookRepo
}

// NewCatalogHandler panics if a repository is missing.
func NewCatalogHandler(a *repository.AuthorRepo, b *repository.BookRepo) *CatalogHandler {
    if a == nil || b == nil {
        panic("nil repository passed to NewCatalogHandler")
    }
    return &CatalogHandler{Authors: a, Books: b}
}

type createAuthorReq struct {
    Name string `json:"name" validate:"required,max=255"`
    Bio  string `json:"bio"`
}

type createBookReq struct {
    Title         string  `json:"title" validate:"required,max=255"`
    ISBN          *string `json:"isbn" validate:"omitempty,max=32"`
    PublishedYear *int    `json:"published_year" validate:"omitempty,gte=0,lte=9999"`
    Quantity      *int    `json:"quantity" validate:"omitempty,gte=1"`
    AuthorID      int64   `json:"author_id" validate:"required,gt=0"`
}

func timeout(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

// ListAuthors handles GET /authors.
func (h *CatalogHandler) ListAuthors(c echo.Context) error {
    ctx, cancel := timeout(c)
    defer cancel()
    authors, err := h.Authors.List(ctx)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, authors)
}

// GetAuthor handles GET /authors/:id.
func (h *CatalogHandler) GetAuthor(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, errorBody("invalid author id"))
    }
    ctx, cancel := timeout(c)
    defer cancel()
    a, err := h.Authors.GetByID(ctx, id)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, a)
}

// CreateAuthor handles POST /authors.
func (h *CatalogHandler) CreateAuthor(c echo.Context) error {
    var req createAuthorReq
    if ok, err := bindValid(c, &req); !ok {
        return err
    }
    a := &model.Author{Name: strings.TrimSpace(req.Name), Bio: req.Bio}
    if a.Name == "" {
        return c.JSON(http.StatusBadRequest, errorBody("name is required"))
    }
    ctx, cancel := timeout(c)
    defer cancel()
    if err := h.Authors.Create(ctx, a); err != nil {
        return err
    }
    return c.JSON(http.StatusCreated, echo.Map{"id": a.ID, "message": "Author created successfully"})
}

// DeleteAuthor handles DELETE /authors/:id.  Authors with books are kept.
func (h *CatalogHandler) DeleteAuthor(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, errorBody("invalid author id"))
    }
    ctx, cancel := timeout(c)
    defer cancel()
    if err := h.Authors.Delete(ctx, id); err != nil {
        return respondError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// ListBooks handles GET /books?title=&author_id=&available=.
func (h *CatalogHandler) ListBooks(c echo.Context) error {
    authorID, err := queryID(c, "author_id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
    }
    available, err := queryBool(c, "available")
    if err != nil {
        return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
    }
    f := repository.BookFilter{
        Title:     strings.TrimSpace(c.QueryParam("title")),
        AuthorID:  authorID,
        Available: available,
    }
    ctx, cancel := timeout(c)
    defer cancel()
    books, err := h.Books.List(ctx, f)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, books)
}

// GetBook handles GET /books/:id and nests the author.
func (h *CatalogHandler) GetBook(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, errorBody("invalid book id"))
    }
    ctx, cancel := timeout(c)
    defer cancel()
    b, err := h.Books.GetDetail(ctx, id)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, b)
}

// CreateBook handles POST /books.  An unknown author is a client error.
func (h *CatalogHandler) CreateBook(c echo.Context) error {
    var req createBookReq
    if ok, err := bindValid(c, &req); !ok {
        return err
    }
    b := &model.Book{
        Title:         strings.TrimSpace(req.Title),
        ISBN:          req.ISBN,
        PublishedYear: req.PublishedYear,
        AuthorID:      req.AuthorID,
    }
    if req.Quantity != nil {
        b.Quantity = *req.Quantity
    }
    if b.Title == "" {
        return c.JSON(http.StatusBadRequest, errorBody("title is required"))
    }
    ctx, cancel := timeout(c)
    defer cancel()
    if err := h.Books.Create(ctx, b); err != nil {
        if errors.Is(err, repository.ErrAuthorNotFound) {
            return c.JSON(http.StatusBadRequest, errorBody("author_id does not reference an existing author"))
        }
        return err
    }
    return c.JSON(http.StatusCreated, echo.Map{"id": b.ID, "message": "Book created successfully"})
}

// DeleteBook handles DELETE /books/:id.  Books that appear in the ledger
// are kept.
func (h *CatalogHandler) DeleteBook(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, errorBody("invalid book id"))
    }
    ctx, cancel := timeout(c)
    defer cancel()
    if err := h.Books.Delete(ctx, id); err != nil {
        return respondError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}
