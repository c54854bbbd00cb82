package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ryanbastic/go-sheetviz/internal/auth"
	"github.com/ryanbastic/go-sheetviz/internal/record"
)

// --- Huma Input/Output types ---

type RegisterBody struct {
	Username string `json:"username" doc:"Unique login name" required:"true" minLength:"1"`
	Email    string `json:"email" doc:"Contact address" required:"false"`
	Password string `json:"password" doc:"At least 6 characters" required:"true"`
}

type RegisterInput struct {
	Body RegisterBody
}

type UserOutput struct {
	Body record.User
}

type LoginBody struct {
	Username string `json:"username" required:"true"`
	Password string `json:"password" required:"true"`
}

type LoginInput struct {
	Body LoginBody
}

type LoginResponse struct {
	Token     string      `json:"token" doc:"Bearer token"`
	ExpiresAt time.Time   `json:"expires_at" doc:"Token expiry"`
	User      record.User `json:"user"`
}

type LoginOutput struct {
	Body LoginResponse
}

type MeInput struct{}

// --- Handler ---

type AuthHandler struct {
	auth   *auth.Service
	logger *slog.Logger
}

func NewAuthHandler(svc *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, logger: logger}
}

func registerAuthRoutes(api huma.API, h *AuthHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Create an account",
		Tags:          []string{"auth"},
		DefaultStatus: http.StatusCreated,
	}, h.Register)

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a bearer token",
		Tags:        []string{"auth"},
	}, h.Login)

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Summary:     "Current account",
		Tags:        []string{"auth"},
	}, h.Me)
}

func (h *AuthHandler) Register(ctx context.Context, input *RegisterInput) (*UserOutput, error) {
	u, err := h.auth.Register(ctx, input.Body.Username, input.Body.Email, input.Body.Password)
	if err != nil {
		return nil, httpError(h.logger, "register", err)
	}
	h.logger.Info("user registered", "user_id", u.ID, "username", u.Username)
	return &UserOutput{Body: *u}, nil
}

func (h *AuthHandler) Login(ctx context.Context, input *LoginInput) (*LoginOutput, error) {
	s, err := h.auth.Login(ctx, input.Body.Username, input.Body.Password)
	if err != nil {
		return nil, httpError(h.logger, "login", err)
	}
	return &LoginOutput{Body: LoginResponse{Token: s.Token, ExpiresAt: s.ExpiresAt, User: *s.User}}, nil
}

func (h *AuthHandler) Me(ctx context.Context, _ *MeInput) (*UserOutput, error) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return nil, httpError(h.logger, "me", auth.ErrUnauthenticated)
	}
	u, err := h.auth.Me(ctx, id.UserID)
	if err != nil {
		// The token outlived its account.
		return nil, httpError(h.logger, "me", auth.ErrUnauthenticated)
	}
	return &UserOutput{Body: *u}, nil
}
