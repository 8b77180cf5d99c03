// Package greeting serves "Hello <secret>!" on GET /. It is the service the
// unsealer is meant to start: SECRET arrives through the sealed config.
package greeting

import (
	"fmt"
	"html"
	"io"
	"net/http"
)

const (
	SecretEnv = "SECRET"
	// FallbackSecret is greeted when SECRET isn't set.
	FallbackSecret = "my missing secret"
)

// LookupSecret resolves the greeted value. A set but empty SECRET is a valid
// value and is returned as is.
func LookupSecret(lookup func(string) (string, bool)) string {
	if v, ok := lookup(SecretEnv); ok {
		return v
	}
	return FallbackSecret
}

func Message(secret string) string {
	return fmt.Sprintf("Hello %s!", secret)
}

// Handler responds with the plain text greeting. The body is computed once.
func Handler(secret string) http.HandlerFunc {
	body := Message(secret)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, body)
	}
}

func HTMLHandler(secret string) http.HandlerFunc {
	body := "<!DOCTYPE html><html><head><title>Hello</title></head><body><div>" +
		html.EscapeString(Message(secret)) +
		"</div></body></html>"
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, body)
	}
}

// NewMux routes GET / to the greeting. Everything else gets the mux defaults.
func NewMux(secret string, asHTML bool) *http.ServeMux {
	h := Handler(secret)
	if asHTML {
		h = HTMLHandler(secret)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h)
	return mux
}
