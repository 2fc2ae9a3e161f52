package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	id "chaintrail/pkg/domain"
	"chaintrail/pkg/requestcontext"
)

// IdentityValidator validates a bearer token and returns the claims we need.
type IdentityValidator interface {
	ValidateToken(tokenString string) (*IdentityClaims, error)
}

// IdentityClaims is what the token proves about the caller: the ledger address
// an external signing agent authenticated, plus the role the client declared.
type IdentityClaims struct {
	Address id.Address
	Role    id.Role
}

// RequireIdentity rejects requests without a valid bearer token and injects
// the caller's address (and declared role, if any) into the request context.
// Every core operation receives its caller explicitly from here; there is no
// ambient session state.
func RequireIdentity(validator IdentityValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				unauthorized(w, r, logger, "missing or malformed Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "invalid identity token",
					"error", err,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				unauthorized(w, r, logger, "invalid or expired token")
				return
			}

			ctx := requestcontext.WithCaller(r.Context(), claims.Address)
			if claims.Role.IsValid() {
				ctx = requestcontext.WithRole(ctx, claims.Role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, logger *slog.Logger, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if _, err := w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`)); err != nil {
		logger.ErrorContext(r.Context(), "failed to write unauthorized response", "error", err)
	}
}
