package auth

import (
	"strings"

	"github.com/AtoyanMikhail/todoauth/internal/apperr"
)

const bearerScheme = "Bearer"

// TokenDecoder is the part of TokenCodec the Gate needs.
type TokenDecoder interface {
	Decode(token string) (*Claims, error)
}

// Gate authorizes a request from its Authorization header value. Loading the user
// record is left to the handler.
type Gate struct {
	decoder TokenDecoder
}

func NewGate(decoder TokenDecoder) *Gate {
	return &Gate{decoder: decoder}
}

// Authorize returns apperr.ErrTokenInvalid for a missing header or a bad token and
// apperr.ErrBadAuthScheme when the header is not "Bearer <token>". The scheme is
// matched case-insensitively.
func (g *Gate) Authorize(header string) (*Claims, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, apperr.ErrTokenInvalid
	}

	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, bearerScheme) || token == "" {
		return nil, apperr.ErrBadAuthScheme
	}

	claims, err := g.decoder.Decode(token)
	if err != nil {
		return nil, apperr.ErrTokenInvalid
	}
	return claims, nil
}
