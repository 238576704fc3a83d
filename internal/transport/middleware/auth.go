package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/gearshare/rental-payments/internal"
	"github.com/gearshare/rental-payments/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
)

// JWTAuth validates the Bearer token and injects the subject user id into the
// request context. Tokens are HMAC-signed; any other signing method is
// rejected.
func JWTAuth(secret string, lg *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				writeAuthError(w, "missing authorization token")
				return
			}

			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, apperrors.ErrInvalidToken
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				lg.Warn("rejected request with invalid token", "path", r.URL.Path, "error", err)
				writeAuthError(w, "invalid or expired token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeAuthError(w, "invalid token claims")
				return
			}

			userID, _ := claims["sub"].(string)
			if userID == "" {
				writeAuthError(w, "token missing subject")
				return
			}

			ctx := apperrors.ContextWithUserID(r.Context(), userID)
			ctx = logger.With(ctx, "userID", userID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
