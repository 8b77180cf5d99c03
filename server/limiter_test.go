package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glossd/unsealer/common"
	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"peer", nil, "10.0.0.1:5555", "10.0.0.1"},
		{"peer without port", nil, "10.0.0.1", "10.0.0.1"},
		{"forwarded for", map[string]string{"X-Forwarded-For": "1.1.1.1, 10.0.0.2"}, "10.0.0.1:5555", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-Ip": "2.2.2.2"}, "10.0.0.1:5555", "2.2.2.2"},
		{"forwarded wins", map[string]string{"X-Forwarded-For": "1.1.1.1", "X-Real-Ip": "2.2.2.2"}, "10.0.0.1:5555", "1.1.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/health", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(r))
		})
	}
}

func TestRateLimit(t *testing.T) {
	// defaults: 2 per second, burst of 5
	s := New(common.Config{})

	get := func(ip string) int {
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, r)
		return rec.Code
	}

	for i := 0; i < common.DefaultRateBurst; i++ {
		assert.Equal(t, http.StatusOK, get("10.0.0.1"), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, get("10.0.0.1"))
	// other clients have their own bucket
	assert.Equal(t, http.StatusOK, get("10.0.0.2"))
}
