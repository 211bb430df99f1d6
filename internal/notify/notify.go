// Package notify is the outbound announcement channel. Delivery is
// best-effort: callers log failures and move on, state changes never wait on
// or roll back for a notification.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crewline/internal/config"
)

// Known audiences.
const (
	AudienceAnnouncements = "announcements"
	AudienceAdmins        = "admins"
)

type Notifier interface {
	Notify(ctx context.Context, audience, message string) error
}

// LogNotifier writes notifications to the structured log only.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Notify(_ context.Context, audience, message string) error {
	n.Logger.Info("notification",
		zap.String("audience", audience),
		zap.String("message", message))
	return nil
}

// Multi fans a notification out to every notifier, returning the first
// error after all have been tried.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, audience, message string) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, audience, message); err != nil && first == nil {
			first = err
		}
	}
	return first
}

const defaultTimeout = 5 * time.Second

// WebhookNotifier posts notifications as JSON to the configured hooks,
// routing by audience.
type WebhookNotifier struct {
	Hooks  []config.WebhookConfig
	Logger *zap.Logger
	Client *http.Client
}

func NewWebhookNotifier(hooks []config.WebhookConfig, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		Hooks:  hooks,
		Logger: logger,
		Client: &http.Client{Timeout: defaultTimeout},
	}
}

type webhookMessage struct {
	DeliveryID string `json:"delivery_id"`
	Audience   string `json:"audience"`
	Message    string `json:"message"`
	SentAt     string `json:"sent_at"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, audience, message string) error {
	var firstErr error
	for _, hook := range n.Hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if !audienceMatch(hook.Audiences, audience) {
			continue
		}
		if err := n.post(ctx, hook, audience, message); err != nil {
			n.Logger.Warn("notification delivery failed",
				zap.String("url", hook.URL),
				zap.String("audience", audience),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (n *WebhookNotifier) post(ctx context.Context, hook config.WebhookConfig, audience, message string) error {
	body := webhookMessage{
		DeliveryID: uuid.NewString(),
		Audience:   audience,
		Message:    message,
		SentAt:     time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Crewline-Audience", audience)
	req.Header.Set("X-Crewline-Delivery", body.DeliveryID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Crewline-Secret", hook.Secret)
	}
	client := n.Client
	if hook.TimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(hook.TimeoutSeconds) * time.Second}
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

func audienceMatch(configured []string, audience string) bool {
	if len(configured) == 0 {
		return true
	}
	for _, a := range configured {
		if strings.TrimSpace(a) == audience {
			return true
		}
	}
	return false
}
