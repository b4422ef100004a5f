package httpingest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var errMissingBearer = errors.New("httpingest: missing bearer token")

// verifyWebhookToken validates the request's Authorization bearer token
// against a monitor tool's configured webhook secret using HMAC. Only
// tools that carry a WebhookSecret require this; unauthenticated ingress
// remains the default.
func verifyWebhookToken(r *http.Request, secret string) error {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return errMissingBearer
	}
	raw := strings.TrimPrefix(header, prefix)

	_, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("httpingest: unexpected signing method")
		}
		return []byte(secret), nil
	})
	return err
}
