package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/library-loans/internal/config"
    "github.com/iliyamo/library-loans/internal/middleware"
    "github.com/iliyamo/library-loans/internal/model"
    "github.com/iliyamo/library-loans/internal/repository"
    "github.com/iliyamo/library-loans/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Cfg    config.Config
    Users  *repository.UserRepo
    Tokens *repository.TokenRepo
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo) *AuthHandler {
    return &AuthHandler{Cfg: cfg, Users: u, Tokens: t}
}

// ----- DTOs -----

type credentialsReq struct {
    Username string `json:"username" validate:"required,max=100"`
    Password string `json:"password" validate:"required,pwbytes"`
}

type refreshReq struct {
    RefreshToken string `json:"refresh_token"`
}

type tokenResp struct {
    AccessToken      string    `json:"access_token"`
    RefreshToken     string    `json:"refresh_token"`
    TokenType        string    `json:"token_type"`
    AccessExpiresAt  time.Time `json:"access_expires_at"`
    RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Register creates a member account.  Admins are only created from the CLI.
func (h *AuthHandler) Register(c echo.Context) error {
    var req credentialsReq
    if ok, err := bindValid(c, &req); !ok {
        return err
    }
    req.Username = strings.TrimSpace(req.Username)
    if req.Username == "" {
        return c.JSON(http.StatusBadRequest, errorBody("username is required"))
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Users.Create(ctx, req.Username, req.Password, model.RoleMember, h.Cfg.BcryptCost)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusCreated, u)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
    var req credentialsReq
    if ok, err := bindValid(c, &req); !ok {
        return err
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Users.GetByUsername(ctx, req.Username)
    if err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return c.JSON(http.StatusUnauthorized, errorBody("Bad username or password"))
        }
        return err
    }
    if !utils.VerifyPassword(u.PasswordHash, req.Password) {
        return c.JSON(http.StatusUnauthorized, errorBody("Bad username or password"))
    }
    resp, err := h.issue(ctx, u)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, resp)
}

// Refresh validates a refresh token by hash, revokes it and issues a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
        return c.JSON(http.StatusBadRequest, errorBody("refresh_token required"))
    }
    hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    userID, err := h.Tokens.ValidateRefresh(ctx, hash)
    if err != nil {
        return respondError(c, err)
    }
    // a concurrent refresh with the same token loses here
    if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
        return respondError(c, err)
    }
    u, err := h.Users.GetByID(ctx, userID)
    if err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return c.JSON(http.StatusUnauthorized, errorBody(repository.ErrTokenInvalid.Error()))
        }
        return err
    }
    resp, err := h.issue(ctx, u)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) issue(ctx context.Context, u *model.User) (tokenResp, error) {
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Username, u.Role, h.Cfg.AccessTTLMin)
    if err != nil {
        return tokenResp{}, err
    }
    refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
    if err != nil {
        return tokenResp{}, err
    }
    if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
        return tokenResp{}, err
    }
    return tokenResp{
        AccessToken:      access.Token,
        RefreshToken:     refresh.Raw,
        TokenType:        "Bearer",
        AccessExpiresAt:  access.Exp,
        RefreshExpiresAt: refresh.Exp,
    }, nil
}

// Logout revokes the refresh token in the body.  Without one, a valid
// bearer token revokes every session of its user.
func (h *AuthHandler) Logout(c echo.Context) error {
    var req refreshReq
    _ = c.Bind(&req)
    refreshToken := strings.TrimSpace(req.RefreshToken)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if refreshToken != "" {
        if err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(refreshToken)); err != nil {
            return respondError(c, err)
        }
        return c.NoContent(http.StatusNoContent)
    }

    auth := c.Request().Header.Get(echo.HeaderAuthorization)
    if !strings.HasPrefix(auth, "Bearer ") {
        return c.JSON(http.StatusBadRequest, errorBody("provide Authorization header or refresh_token"))
    }
    claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
    if err != nil {
        return c.JSON(http.StatusUnauthorized, errorBody("invalid token"))
    }
    uid, _ := claims.UserID()
    if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
        return err
    }
    return c.NoContent(http.StatusNoContent)
}

// Me echoes the caller's claims.
func (h *AuthHandler) Me(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
    }
    return c.JSON(http.StatusOK, echo.Map{
        "user_id":  uid,
        "username": c.Get(middleware.CtxUsername),
        "role":     middleware.Role(c),
    })
}
