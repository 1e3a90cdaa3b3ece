package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode int
		wantOut  string
	}{
		{
			name:     "ok",
			status:   http.StatusOK,
			body:     `{"status":"ok","view_token":3,"credits":12}`,
			wantCode: 0,
			wantOut:  "ok: 12 credits, view 3",
		},
		{
			name:     "degraded view",
			status:   http.StatusOK,
			body:     `{"status":"degraded","view_error":"listing issuance events: connection refused"}`,
			wantCode: 1,
			wantOut:  "connection refused",
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `{}`,
			wantCode: 1,
			wantOut:  "returned 500",
		},
		{
			name:     "not json",
			status:   http.StatusOK,
			body:     `<html>`,
			wantCode: 1,
			wantOut:  "decoding health response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/health", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			var out bytes.Buffer
			code := check(context.Background(), server.Client(), server.URL, &out)

			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, out.String(), tt.wantOut)
		})
	}
}

func TestCheck_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	var out bytes.Buffer
	assert.Equal(t, 1, check(context.Background(), http.DefaultClient, url, &out))
	assert.Contains(t, out.String(), "unhealthy")
}

func TestNormalizeAddr(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "", want: "127.0.0.1:8080"},
		{raw: "0.0.0.0:9000", want: "127.0.0.1:9000"},
		{raw: ":9000", want: "127.0.0.1:9000"},
		{raw: "10.0.0.5:8080", want: "10.0.0.5:8080"},
		{raw: "garbage", want: "127.0.0.1:8080"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeAddr(tt.raw), tt.raw)
	}
}
