// Command healthcheck checks a running creditpanel server from inside its
// container and exits non-zero unless the server reports itself healthy.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	httphandler "github.com/ericfisherdev/creditpanel/internal/adapter/driving/http"
)

const timeout = 2 * time.Second

func main() {
	baseURL := "http://" + normalizeAddr(os.Getenv("CREDITPANEL_LISTEN_ADDR"))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	code := check(ctx, &http.Client{Timeout: timeout}, baseURL, os.Stdout)
	cancel()
	os.Exit(code)
}

// check fetches the health endpoint under baseURL and returns the exit code.
// Only a 200 response whose status is "ok" counts as healthy; a degraded view
// (the last refresh failed) is reported and fails the check.
func check(ctx context.Context, client *http.Client, baseURL string, out io.Writer) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/health", nil)
	if err != nil {
		fmt.Fprintf(out, "unhealthy: %v\n", err)
		return 1
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(out, "unhealthy: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(out, "unhealthy: health endpoint returned %d\n", resp.StatusCode)
		return 1
	}

	var health httphandler.HealthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&health); err != nil {
		fmt.Fprintf(out, "unhealthy: decoding health response: %v\n", err)
		return 1
	}

	if health.Status != "ok" {
		reason := health.ViewError
		if reason == "" {
			reason = "no reason given"
		}
		fmt.Fprintf(out, "unhealthy: status %q: %s\n", health.Status, reason)
		return 1
	}

	fmt.Fprintf(out, "ok: %d credits, view %d\n", health.Credits, health.ViewToken)
	return 0
}

// normalizeAddr ensures the healthcheck connects to loopback rather than the
// bind-all address. The server binds 0.0.0.0 in containers, but the check runs
// inside the same container.
func normalizeAddr(raw string) string {
	if raw == "" {
		return "127.0.0.1:8080"
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return "127.0.0.1:8080"
	}

	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
