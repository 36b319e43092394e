package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	gferrors "github.com/fulmenhq/gofulmen/errors"

	"github.com/namelens/chatgate/internal/metrics"
)

type subjectContextKey struct{}

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

// BearerAuth rejects requests without a valid HS256 JWT signed with secret.
// When issuer is set the iss claim must match. The token subject is available
// to handlers through GetSubject.
func BearerAuth(secret []byte, issuer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verifyBearer(r.Header.Get("Authorization"), secret, issuer)
			if err != nil {
				envelope := gferrors.NewErrorEnvelope("UNAUTHORIZED", err.Error()).
					WithCorrelationID(GetRequestID(r.Context()))
				metrics.RecordError(envelope.Code, http.StatusUnauthorized)
				w.Header().Set("WWW-Authenticate", `Bearer realm="chatgate"`)
				writeErrorResponse(w, envelope, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), subjectContextKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSubject returns the authenticated token subject, or "".
func GetSubject(ctx context.Context) string {
	subject, _ := ctx.Value(subjectContextKey{}).(string)
	return subject
}

func verifyBearer(header string, secret []byte, issuer string) (*jwt.RegisteredClaims, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return nil, errMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("token expired")
		}
		return nil, errInvalidToken
	}
	if !token.Valid {
		return nil, errInvalidToken
	}
	if issuer != "" && !claims.VerifyIssuer(issuer, true) {
		return nil, errors.New("unexpected token issuer")
	}
	return claims, nil
}
