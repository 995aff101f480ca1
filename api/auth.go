package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// ACTOR RESOLUTION
// =============================================================================
//
// With a secret configured, the actor comes from an HS256 bearer token
// carrying "uid" and "name" claims. Without one (local/dev), the
// X-User-ID and X-User-Name headers are trusted as-is.

// Claims is the bearer token payload.
type Claims struct {
	UserID string `json:"uid"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for actor valid for ttl.
func GenerateToken(secret string, actor leave.Actor, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: actor.UserID,
		Name:   actor.UserName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies tokenString and returns its claims.
func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

type ctxKey int

const ctxKeyActor ctxKey = iota

// Authenticate resolves the calling actor and stores it in the request
// context. A present but invalid bearer token is rejected with 401; a
// missing one leaves the request anonymous.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var actor leave.Actor
			if secret == "" {
				actor = leave.Actor{
					UserID:   strings.TrimSpace(r.Header.Get("X-User-ID")),
					UserName: strings.TrimSpace(r.Header.Get("X-User-Name")),
				}
			} else if header := r.Header.Get("Authorization"); header != "" {
				parts := strings.SplitN(header, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
					writeError(w, http.StatusUnauthorized, "Malformed Authorization header", nil)
					return
				}
				claims, err := ParseToken(secret, strings.TrimSpace(parts[1]))
				if err != nil {
					writeError(w, http.StatusUnauthorized, "Invalid bearer token", err)
					return
				}
				actor = leave.Actor{UserID: claims.UserID, UserName: claims.Name}
			}

			if actor.UserID == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyActor, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFrom returns the actor resolved by Authenticate.
func ActorFrom(ctx context.Context) (leave.Actor, bool) {
	actor, ok := ctx.Value(ctxKeyActor).(leave.Actor)
	return actor, ok
}
