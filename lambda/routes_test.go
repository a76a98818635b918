package lambda

import (
	"context"
	"net/http"
	"testing"
)

func TestRouter_Route(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"challenge", http.MethodPost, "/challenge", http.StatusOK, ""},
		{"challenge trailing slash", "post", "/challenge/", http.StatusOK, ""},
		{"verify reaches handler", http.MethodPost, "/verify", http.StatusBadRequest, "INVALID_REQUEST"},
		{"get challenge", http.MethodGet, "/challenge", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"delete verify", http.MethodDelete, "/verify", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"root", http.MethodPost, "/", http.StatusNotFound, "NOT_FOUND"},
		{"unknown", http.MethodPost, "/profiles", http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newHandlerFixture(t)
			router := NewRouter(fx.handler)

			req := iamRequest(`{"username":"+15551234567"}`)
			req.RawPath = tt.path
			req.RequestContext.HTTP.Method = tt.method

			resp, err := router.Route(context.Background(), req)
			if err != nil {
				t.Fatalf("Route() error = %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d (body %s)", resp.StatusCode, tt.wantStatus, resp.Body)
			}
			if tt.wantCode != "" {
				if got := decodeAPIError(t, resp); got.Code != tt.wantCode {
					t.Errorf("Code = %q, want %q", got.Code, tt.wantCode)
				}
			}
			if tt.wantStatus == http.StatusMethodNotAllowed && resp.Headers["Allow"] != http.MethodPost {
				t.Errorf("Allow = %q, want POST", resp.Headers["Allow"])
			}
		})
	}
}
