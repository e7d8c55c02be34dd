package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/AtoyanMikhail/todoauth/internal/auth"
	"github.com/AtoyanMikhail/todoauth/internal/logger"
	"github.com/AtoyanMikhail/todoauth/internal/repository/models"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// AuthService is the session protocol the handlers drive.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*models.User, error)
	Login(ctx context.Context, username, password, remoteIP string) (*auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string, who auth.Identity) error
	CurrentUser(ctx context.Context, who auth.Identity) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
}

type Authorizer interface {
	Authorize(header string) (*auth.Claims, error)
}

// Pinger is a dependency reported by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	svc      AuthService
	gate     Authorizer
	checks   map[string]Pinger
	validate *validator.Validate
	logger   logger.Logger
}

func New(svc AuthService, gate Authorizer, checks map[string]Pinger, l logger.Logger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	return &Handler{
		svc:      svc,
		gate:     gate,
		checks:   checks,
		validate: v,
		logger:   l,
	}
}

func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	// mux skips middleware for unmatched requests, so these log themselves.
	r.NotFoundHandler = h.RequestLogger(http.HandlerFunc(h.notFound))
	r.MethodNotAllowedHandler = h.RequestLogger(http.HandlerFunc(h.methodNotAllowed))
	r.Use(h.RequestLogger, h.Recoverer)

	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/login-json", h.LoginJSON).Methods(http.MethodPost)
	r.HandleFunc("/refresh", h.Refresh).Methods(http.MethodPost)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	r.Handle("/logout", h.RequireAuth(http.HandlerFunc(h.Logout))).Methods(http.MethodPost)
	r.Handle("/me", h.RequireAuth(http.HandlerFunc(h.Me))).Methods(http.MethodGet)
	r.Handle("/users", h.RequireAuth(http.HandlerFunc(h.ListUsers))).Methods(http.MethodGet)

	return r
}
