package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/AtoyanMikhail/todoauth/internal/apperr"
	"github.com/AtoyanMikhail/todoauth/internal/auth"
	"github.com/AtoyanMikhail/todoauth/internal/logger"
	"github.com/AtoyanMikhail/todoauth/internal/models"
	repomodels "github.com/AtoyanMikhail/todoauth/internal/repository/models"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

// writeError renders err as {"error":{"code","message"}}. Causes of internal
// errors are logged and never sent.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	if e.Kind == apperr.KindInternal {
		h.logger.Error("Request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err))
	}
	if e.Kind == apperr.KindTokenInvalid {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	h.writeJSON(w, e.HTTPStatus(), models.ErrorRes{
		Error: models.ErrorBody{Code: string(e.Kind), Message: e.Message},
	})
}

// decodeJSON reads the body into dst and validates it. An empty body decodes
// to the zero value when allowEmpty is set.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return apperr.Validation("request body must be a valid JSON object")
		}
	}
	return h.validateStruct(dst)
}

func (h *Handler) validateStruct(v interface{}) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Validation(fmt.Sprintf("field %q failed on %q", fe.Field(), fe.Tag()))
	}
	return apperr.Validation("invalid request")
}

func toUserRes(u *repomodels.User) models.UserRes {
	return models.UserRes{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func toTokenPairRes(p *auth.TokenPair) models.TokenPairRes {
	return models.TokenPairRes{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    p.ExpiresIn,
	}
}
