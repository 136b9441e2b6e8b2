package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oshokin/deploykeeper/internal/config"
	"github.com/oshokin/deploykeeper/internal/logger"
	"github.com/oshokin/deploykeeper/internal/version"
)

// maxMessageSize keeps the body within the ntfy message limit; the tail of
// a startup transcript is the interesting part.
const maxMessageSize = 4096

// errNotifyStatus is returned for non-2xx ntfy responses.
var errNotifyStatus = errors.New("unexpected ntfy status")

// Notifier sends a subject and a body to operators.
type Notifier interface {
	Send(ctx context.Context, subject, body string)
}

// New returns an ntfy notifier when a topic URL is configured and a
// log-only notifier otherwise.
//
//nolint:ireturn // The implementation depends on configuration.
func New(cfg config.Notify) Notifier {
	topic := strings.TrimSpace(cfg.NtfyURL)
	if topic == "" {
		return LogNotifier{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	return &NtfyNotifier{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// LogNotifier writes notifications to the log only.
type LogNotifier struct{}

// Send implements Notifier.
func (LogNotifier) Send(ctx context.Context, subject, body string) {
	logger.InfoKV(ctx, "Notification", "subject", subject, "body_bytes", len(body))
}

// NtfyNotifier publishes notifications to an ntfy topic.
type NtfyNotifier struct {
	// endpoint is the topic URL.
	endpoint string
	// client performs the requests.
	client *http.Client
}

// Send implements Notifier.
func (n *NtfyNotifier) Send(ctx context.Context, subject, body string) {
	logger.InfoKV(ctx, "Notification", "subject", subject)

	if err := n.send(ctx, subject, body); err != nil {
		logger.WarnKV(ctx, "Failed to deliver notification", "subject", subject, "error", err)
	}
}

func (n *NtfyNotifier) send(ctx context.Context, subject, body string) error {
	if len(body) > maxMessageSize {
		body = body[len(body)-maxMessageSize:]
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}

	request.Header.Set("User-Agent", version.UserAgent())
	request.Header.Set("Content-Type", "text/plain; charset=utf-8")
	request.Header.Set("Title", subject)
	request.Header.Set("Tags", strings.Join(tags(subject), ","))

	if strings.Contains(subject, "FAILED") || strings.Contains(subject, "UNKNOWN") {
		request.Header.Set("Priority", "high")
	}

	response, err := n.client.Do(request)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 2048))

		return fmt.Errorf("%w: %d %s", errNotifyStatus, response.StatusCode, strings.TrimSpace(string(detail)))
	}

	_, _ = io.Copy(io.Discard, response.Body)

	return nil
}

// tags derives ntfy tags from the subject words before the jar name.
func tags(subject string) []string {
	result := []string{"deploykeeper"}

	fields := strings.Fields(subject)
	if len(fields) > 2 {
		fields = fields[:2]
	}

	for _, field := range fields {
		result = append(result, strings.ToLower(field))
	}

	return result
}
