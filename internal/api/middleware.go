/**
 * @description
 * This file contains custom middleware for the HTTP router. The payout surface
 * is an internal operator/service API, so requests are authenticated with a
 * shared internal API key rather than end-user credentials.
 *
 * @dependencies
 * - crypto/subtle, net/http, strings: Standard Go libraries.
 */

package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const internalAPIKeyHeader = "X-Internal-Api-Key"

// InternalKeyAuth creates a middleware that validates the shared internal API
// key on every request. An empty configured key rejects everything; the service
// refuses to boot without one, so this is a final safety net.
func InternalKeyAuth(apiKey string) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(apiKey))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := []byte(strings.TrimSpace(r.Header.Get(internalAPIKeyHeader)))
			if len(expected) == 0 || len(provided) == 0 ||
				subtle.ConstantTimeCompare(expected, provided) != 1 {
				http.Error(w, "invalid or missing internal API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
