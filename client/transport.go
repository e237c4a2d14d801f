package client

import (
	"log/slog"
	"net/http"
	"time"
)

// loggingTransport logs each request and response at debug level. Enabled
// through Service.EnableDebug.
type loggingTransport struct {
	base http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	slog.Debug("http request",
		"method", req.Method,
		"url", req.URL.String(),
	)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		slog.Debug("http request failed",
			"method", req.Method,
			"url", req.URL.String(),
			"error", err.Error(),
			"elapsed", time.Since(start).String(),
		)
		return nil, err
	}

	slog.Debug("http response",
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"elapsed", time.Since(start).String(),
	)
	return resp, nil
}
