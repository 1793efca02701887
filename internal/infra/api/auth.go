package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"research-orchestrator/internal/infra/logging"

	"github.com/golang-jwt/jwt/v5"
)

var errUnauthenticated = errors.New("unauthorized")

// Authenticator resolves the caller from an HS256 bearer token whose
// subject is the user id. In dev mode every request runs as DevUserID.
type Authenticator struct {
	secret    []byte
	dev       bool
	devUserID string
}

func NewAuthenticator(secret string, dev bool, devUserID string) *Authenticator {
	return &Authenticator{secret: []byte(secret), dev: dev, devUserID: devUserID}
}

// Mint signs a token for userID. Used by the seed tool and tests.
func (a *Authenticator) Mint(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) UserFromRequest(r *http.Request) (string, error) {
	if a.dev {
		return a.devUserID, nil
	}
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return "", errUnauthenticated
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *Authenticator) parse(tok string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return "", errUnauthenticated
	}
	return claims.Subject, nil
}

// Middleware rejects unauthenticated requests and stores the user id in the
// request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.UserFromRequest(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
			return
		}
		ctx := logging.WithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
