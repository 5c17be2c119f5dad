package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFromContext(c)) })

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated", incoming: ""},
		{name: "reused", incoming: "req-123_abc", keep: true},
		{name: "log injection", incoming: "abc\ninjected"},
		{name: "too long", incoming: string(make([]byte, 65))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header[requestIDHeader] = []string{tt.incoming}
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if got != w.Body.String() {
				t.Fatalf("header %q and context %q differ", got, w.Body.String())
			}
			if tt.keep && got != tt.incoming {
				t.Fatalf("expected %q to be reused, got %q", tt.incoming, got)
			}
			if !tt.keep && (got == tt.incoming || len(got) != 26) {
				t.Fatalf("expected a generated ULID, got %q", got)
			}
		})
	}
}
