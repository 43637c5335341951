package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantCode   int
	}{
		{name: "listed origin", allowed: []string{"http://app.test"}, origin: "http://app.test", method: http.MethodGet, wantOrigin: "http://app.test", wantCode: http.StatusOK},
		{name: "unlisted origin", allowed: []string{"http://app.test"}, origin: "http://evil.test", method: http.MethodGet, wantOrigin: "", wantCode: http.StatusOK},
		{name: "wildcard", allowed: []string{"*"}, origin: "http://any.test", method: http.MethodGet, wantOrigin: "*", wantCode: http.StatusOK},
		{name: "preflight", allowed: []string{"http://app.test"}, origin: "http://app.test", method: http.MethodOptions, wantOrigin: "http://app.test", wantCode: http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/v1/jobs", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()
			CORS(tc.allowed)(ok).ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Fatalf("allow origin = %q, want %q", got, tc.wantOrigin)
			}
		})
	}
}
