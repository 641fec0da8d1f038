package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/hlog"
)

const (
	csrfCookieName = "csrf_token"
	csrfFieldName  = "csrf_token"
)

type csrfKey struct{}

// CSRF issues a per-browser anti-forgery token in a cookie and requires every
// unsafe request to echo it back in the csrf_token form field.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if c, err := r.Cookie(csrfCookieName); err == nil && c.Value != "" {
			token = c.Value
		}

		if !isSafeMethod(r.Method) {
			sent := r.PostFormValue(csrfFieldName)
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(sent)) != 1 {
				hlog.FromRequest(r).Warn().Str("path", r.URL.Path).Msg("Rejected request with invalid anti-forgery token")
				http.Error(w, "invalid anti-forgery token", http.StatusForbidden)
				return
			}
		}

		if token == "" {
			id, err := uuid.NewV4()
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Msg("Failed to generate anti-forgery token")
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			token = id.String()
			http.SetCookie(w, &http.Cookie{
				Name:     csrfCookieName,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfKey{}, token)))
	})
}

// CSRFToken returns the token CSRF attached to the request.
func CSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfKey{}).(string)
	return token
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
