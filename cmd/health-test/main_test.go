package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"healthy", http.StatusOK, `{"status":"ok","version":"1.0.0","services":{"database":{"status":"ok"}}}`, false},
		{"database down", http.StatusServiceUnavailable, `{"status":"error","services":{"database":{"status":"error","error":"refused"}}}`, true},
		{"not json", http.StatusOK, `<html>`, true},
		{"degraded but 200", http.StatusOK, `{"status":"ok","services":{"database":{"status":"error"}}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := check(srv.Client(), srv.URL)
			if (err != nil) != tt.wantErr {
				t.Errorf("check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRenderIncludesDatabaseError(t *testing.T) {
	h := &HealthResponse{Status: "error", Version: "1.0.0"}
	h.Services.Database.Status = "error"
	h.Services.Database.Error = "connection refused"

	out := render("http://localhost:8000/health", h)
	if !strings.Contains(out, "connection refused") || !strings.Contains(out, "1.0.0") {
		t.Errorf("render() missing fields:\n%s", out)
	}
}
