package handler

import (
	"context"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/AtoyanMikhail/todoauth/internal/apperr"
	"github.com/AtoyanMikhail/todoauth/internal/logger"
	"github.com/AtoyanMikhail/todoauth/internal/models"
)

const healthTimeout = 2 * time.Second

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterReq
	if err := h.decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toUserRes(user))
}

// Login accepts an url-encoded form (OAuth2 password flow style) or a JSON body.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/x-www-form-urlencoded" && mediaType != "multipart/form-data" {
		h.LoginJSON(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, apperr.Validation("invalid form body"))
		return
	}
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			h.writeError(w, r, apperr.Validation("invalid form body"))
			return
		}
	}

	req := models.LoginReq{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	if err := h.validateStruct(&req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.login(w, r, req)
}

func (h *Handler) LoginJSON(w http.ResponseWriter, r *http.Request) {
	var req models.LoginReq
	if err := h.decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.login(w, r, req)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request, req models.LoginReq) {
	pair, err := h.svc.Login(r.Context(), req.Username, req.Password, remoteIP(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTokenPairRes(pair))
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshReq
	if err := h.decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTokenPairRes(pair))
}

// Logout acknowledges every well-formed request, whether or not the token was live.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperr.ErrTokenInvalid)
		return
	}

	var req models.LogoutReq
	if err := h.decodeJSON(w, r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.svc.Logout(r.Context(), req.RefreshToken, claims.Identity()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, models.MessageRes{Message: "Successfully logged out"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperr.ErrTokenInvalid)
		return
	}

	user, err := h.svc.CurrentUser(r.Context(), claims.Identity())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toUserRes(user))
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res := make([]models.UserRes, 0, len(users))
	for _, u := range users {
		res = append(res, toUserRes(u))
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	res := models.HealthRes{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Health check failed", logger.String("check", name), logger.Error(err))
			res.Checks[name] = "unavailable"
			res.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "ok"
	}

	h.writeJSON(w, status, res)
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, apperr.ErrNotFound)
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusMethodNotAllowed, models.ErrorRes{
		Error: models.ErrorBody{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"},
	})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
