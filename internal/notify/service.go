// Package notify posts end-of-call summaries to tenant-configured webhooks
// in Slack block format. Delivery is best-effort: a tenant without a
// webhook (or one not subscribed to call_ended) is skipped, and failures
// are logged but never allowed to disturb call teardown.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smiledesk/smiledesk/agent-plane/pkg/models"
)

// EventCallEnded is the notification event emitted at call end.
const EventCallEnded = "call_ended"

// maxAttempts bounds webhook delivery retries.
const maxAttempts = 3

// Notifier delivers call summaries over HTTP.
type Notifier struct {
	client     *http.Client
	retryDelay time.Duration
}

// NewNotifier creates a notifier with a 15s delivery timeout.
func NewNotifier() *Notifier {
	return &Notifier{
		client:     &http.Client{Timeout: 15 * time.Second},
		retryDelay: 2 * time.Second,
	}
}

// CallEnded posts the call summary to the tenant's webhook, when one is
// configured and subscribed to call_ended. Reports whether a delivery was
// attempted and succeeded; callers may ignore the result.
func (n *Notifier) CallEnded(ctx context.Context, cfg *models.TenantConfig, report models.CallReport) bool {
	if !cfg.Notifications.Subscribes(EventCallEnded) {
		log.Debug().Str("tenant", report.TenantKey).Msg("No call summary webhook configured")
		return false
	}

	payload := summaryBlocks(cfg, report)
	body, err := json.Marshal(map[string]any{"blocks": payload})
	if err != nil {
		log.Warn().Err(err).Str("tenant", report.TenantKey).Msg("Failed to marshal call summary")
		return false
	}

	if err := n.send(ctx, cfg.Notifications.WebhookURL, body); err != nil {
		log.Warn().
			Err(err).
			Str("tenant", report.TenantKey).
			Str("room", report.RoomName).
			Msg("Call summary delivery failed")
		return false
	}

	log.Info().
		Str("tenant", report.TenantKey).
		Str("room", report.RoomName).
		Str("outcome", string(report.Outcome)).
		Msg("Call summary dispatched")
	return true
}

// send posts the payload with up to maxAttempts deliveries and linear sleep
// backoff between them.
func (n *Notifier) send(ctx context.Context, url string, body []byte) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * n.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "SmileDesk-Agent/1.0")
		req.Header.Set("X-SmileDesk-Event", EventCallEnded)

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, url)
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", maxAttempts, lastErr)
}

// summaryBlocks builds the Slack block payload for one call.
func summaryBlocks(cfg *models.TenantConfig, report models.CallReport) []map[string]any {
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type":  "plain_text",
				"text":  ":slack_call: AI Agent Call Summary - " + report.RoomName,
				"emoji": true,
			},
		},
		{"type": "divider"},
		{
			"type": "section",
			"fields": []map[string]any{
				field("Organization", cfg.OrganizationName()),
				field("Call Outcome", outcomeText(report.Outcome)),
				field("Session", report.SessionID),
				field("Patient", orDash(report.PatientName)),
			},
		},
	}

	if report.RecordingURL != "" {
		blocks = append(blocks, map[string]any{
			"type": "actions",
			"elements": []map[string]any{
				{
					"type": "button",
					"text": map[string]any{
						"type":  "plain_text",
						"text":  ":video_camera: View Recording",
						"emoji": true,
					},
					"url": report.RecordingURL,
				},
			},
		})
	}

	blocks = append(blocks, map[string]any{"type": "divider"})
	return blocks
}

func field(label, value string) map[string]any {
	return map[string]any{
		"type": "mrkdwn",
		"text": fmt.Sprintf("*%s:*\n%s", label, value),
	}
}

// outcomeText renders an outcome as a title-cased label, e.g.
// callback_requested → "Callback Requested".
func outcomeText(outcome models.OutcomeState) string {
	words := strings.Split(string(outcome), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
