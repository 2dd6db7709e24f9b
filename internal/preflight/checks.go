package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"terport/internal/config"
	"terport/internal/research"
	"terport/internal/services/llm"
)

const defaultEndpointTimeout = 10 * time.Second

// CheckLLM verifies that model answers through the configured gateway.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg config.LLMConfig, model string) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	completer := llm.NewCompleter(cfg.Provider, llm.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Referer:        cfg.Referer,
		Title:          cfg.Title,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, llm.WithRetryMaxAttempts(1))

	if err := llm.Ping(checkCtx, completer, model); err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckEndpoint probes a knowledge-base endpoint with a SPARQL ASK, or a
// single question when it only exposes an ask_url.
func CheckEndpoint(ctx context.Context, client *research.Client, ep research.Endpoint, timeout time.Duration) Result {
	name := "Endpoint " + ep.Name
	if timeout <= 0 {
		timeout = defaultEndpointTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := client.Ask(checkCtx, ep)
	if err != nil {
		var epErr *research.EndpointError
		if errors.As(err, &epErr) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (%v)", epErr.Kind, epErr.Err)}
		}
		return Result{Name: name, Detail: err.Error()}
	}
	if !ok {
		return Result{Name: name, Detail: "reachable but reports an empty graph"}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// summarizeLLMError produces a human-readable summary for LLM health check failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	var statusErr *llm.HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 401, 403:
			return "auth failed (invalid api key)"
		case 404:
			return "model not found"
		}
	}
	return err.Error()
}
