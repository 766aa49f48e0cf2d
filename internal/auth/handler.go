package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/account"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// Authenticator checks credentials. account.Service implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*entity.Account, error)
}

type Handler struct {
	tokens *TokenService
	users  Authenticator
	logger *zap.SugaredLogger
}

func NewHandler(tokens *TokenService, users Authenticator, logger *zap.SugaredLogger) *Handler {
	return &Handler{tokens: tokens, users: users, logger: logger}
}

// LoginRequest login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	a, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Debugw("login failed", "username", req.Username, "err", err)
		switch {
		case errors.Is(err, account.ErrBadCredentials):
			utilities.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, account.ErrDisabled):
			utilities.WriteError(w, http.StatusForbidden, "account suspended")
		default:
			utilities.WriteError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}
	view := a.AuthView()
	tok, err := h.tokens.IssueAccessToken(view)
	if err != nil {
		h.logger.Warnw("token issue failed", "account_id", a.ID, "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "login failed")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken: tok,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.tokens.TTL().Seconds()),
		Username:    view.Username,
		Roles:       view.Roles,
	})
}

func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	utilities.WriteJSON(w, http.StatusOK, h.tokens.JWKS())
}
