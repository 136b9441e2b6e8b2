package actuator

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"

	"github.com/oshokin/deploykeeper/internal/config"
	"github.com/oshokin/deploykeeper/internal/domain/deploy"
	"github.com/oshokin/deploykeeper/internal/logger"
	"github.com/oshokin/deploykeeper/internal/version"
)

// maxBody caps decoded actuator responses.
const maxBody = 64 << 10

// Client calls the actuator endpoints of the managed application.
type Client struct {
	// healthURL is the GET status endpoint.
	healthURL string
	// shutdownURL is the POST shutdown endpoint; empty disables shutdown requests.
	shutdownURL string
	// infoURL is the GET build info endpoint; empty leaves version info unresolved.
	infoURL string
	// http performs the requests.
	http *http.Client
}

// NewClient creates a Client with the configured connect and read timeouts.
func NewClient(app config.Application, timeouts config.Actuator) *Client {
	dialer := &net.Dialer{Timeout: timeouts.ConnectTimeout}

	//nolint:exhaustruct // Remaining transport fields keep their defaults.
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   timeouts.ConnectTimeout,
		ResponseHeaderTimeout: timeouts.ReadTimeout,
	}

	return &Client{
		healthURL:   app.HealthURL,
		shutdownURL: app.ShutdownURL,
		infoURL:     app.InfoURL,
		http: &http.Client{
			Transport: transport,
			Timeout:   timeouts.ConnectTimeout + timeouts.ReadTimeout,
		},
	}
}

// Status reads the health endpoint. Spring answers 503 with a DOWN body, so
// the body is decoded regardless of the status code.
func (c *Client) Status(ctx context.Context) deploy.HealthStatus {
	var body struct {
		Status string `json:"status"`
	}

	if !c.getJSON(ctx, c.healthURL, &body) {
		return deploy.HealthUnknown
	}

	return deploy.ParseHealthStatus(body.Status)
}

// RequestShutdown posts to the shutdown endpoint and reports whether the
// request was acknowledged with a 2xx response.
func (c *Client) RequestShutdown(ctx context.Context) bool {
	if c.shutdownURL == "" {
		return false
	}

	request, err := c.newRequest(ctx, http.MethodPost, c.shutdownURL)
	if err != nil {
		logger.WarnKV(ctx, "Shutdown request failed", "error", err)

		return false
	}

	response, err := c.http.Do(request)
	if err != nil {
		logger.WarnKV(ctx, "Shutdown request failed", "error", err)

		return false
	}

	defer drain(response)

	acknowledged := response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices
	logger.DebugKV(ctx, "Shutdown requested", "status", response.Status, "acknowledged", acknowledged)

	return acknowledged
}

// VersionInfo reads the build version from the info endpoint.
func (c *Client) VersionInfo(ctx context.Context) deploy.VersionInfo {
	if c.infoURL == "" {
		return deploy.VersionInfo{}
	}

	var body struct {
		Build struct {
			Version string `json:"version"`
		} `json:"build"`
	}

	if !c.getJSON(ctx, c.infoURL, &body) || body.Build.Version == "" {
		return deploy.VersionInfo{}
	}

	return deploy.VersionInfo{Version: body.Build.Version, Resolved: true}
}

// getJSON decodes the body of a GET into out and reports success.
func (c *Client) getJSON(ctx context.Context, target string, out any) bool {
	request, err := c.newRequest(ctx, http.MethodGet, target)
	if err != nil {
		logger.DebugKV(ctx, "Actuator request failed", "url", target, "error", err)

		return false
	}

	response, err := c.http.Do(request)
	if err != nil {
		logger.DebugKV(ctx, "Actuator request failed", "url", target, "error", err)

		return false
	}

	defer drain(response)

	if err = json.NewDecoder(io.LimitReader(response.Body, maxBody)).Decode(out); err != nil {
		logger.DebugKV(ctx, "Actuator response is not readable", "url", target, "status", response.Status, "error", err)

		return false
	}

	return true
}

func (c *Client) newRequest(ctx context.Context, method, target string) (*http.Request, error) {
	request, err := http.NewRequestWithContext(ctx, method, target, http.NoBody)
	if err != nil {
		return nil, err
	}

	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", version.UserAgent())

	return request, nil
}

func drain(response *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxBody))
	_ = response.Body.Close()
}
