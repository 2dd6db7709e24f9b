package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"terport/internal/config"
	"terport/internal/terport"
)

const userAgent = "terport/1"

// Service defines the notification surface exposed to the orchestrator.
type Service interface {
	NotifyRunCompleted(ctx context.Context, rec terport.GenerationRecord) error
	NotifyRunFailed(ctx context.Context, rec terport.GenerationRecord, err error) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, rec terport.GenerationRecord) error {
	title := "Terport - Generation Complete"
	tags := []string{"terport", "generation", "completed"}
	if rec.Status == terport.RunStatusCompletedWithErrors {
		title = "Terport - Generation Complete (with errors)"
		tags = []string{"terport", "generation", "warning"}
	}
	message := fmt.Sprintf("%s run for %s: %d/%d topics generated",
		rec.Trigger, versionLabel(rec.PluginVersion), rec.TopicsSucceeded, rec.TopicsAttempted)
	if rec.TopicsFailed > 0 {
		message += fmt.Sprintf(", %d failed", rec.TopicsFailed)
	}
	if d := runDuration(rec); d != "" {
		message += " in " + d
	}
	return n.send(ctx, payload{title: title, message: message, tags: tags})
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, rec terport.GenerationRecord, err error) error {
	reason := strings.TrimSpace(rec.ErrorMessage)
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	if reason == "" {
		reason = "every topic failed"
	}
	data := payload{
		title: "Terport - Generation Failed",
		message: fmt.Sprintf("%s run for %s failed after %d/%d topics: %s",
			rec.Trigger, versionLabel(rec.PluginVersion), rec.TopicsSucceeded+rec.TopicsFailed, rec.TopicsAttempted, reason),
		tags:     []string{"terport", "generation", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Terport - Error",
		message:  builder.String(),
		tags:     []string{"terport", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Terport - Test",
		message:  "Notification system test",
		tags:     []string{"terport", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func versionLabel(version string) string {
	if version = strings.TrimSpace(version); version == "" {
		return "unknown version"
	}
	return "v" + strings.TrimPrefix(version, "v")
}

func runDuration(rec terport.GenerationRecord) string {
	if rec.FinishedAt == nil || rec.StartedAt.IsZero() {
		return ""
	}
	d := rec.FinishedAt.Sub(rec.StartedAt).Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, terport.GenerationRecord) error { return nil }
func (noopService) NotifyRunFailed(context.Context, terport.GenerationRecord, error) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
