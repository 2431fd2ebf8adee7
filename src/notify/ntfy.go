package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"foliomedia/src/config"
)

// NtfySender sends push notifications via ntfy.sh
type NtfySender struct {
	cfg    config.NtfyConfig
	client *http.Client
	log    *zap.SugaredLogger
}

// NtfyMessage represents a ntfy notification
type NtfyMessage struct {
	Title    string
	Message  string
	Actions  []NtfyAction
	Tags     []string
	Priority int
}

// NtfyAction represents a clickable action button
type NtfyAction struct {
	Action string `json:"action"` // "view" or "http"
	Label  string `json:"label"`
	URL    string `json:"url"`
	Clear  bool   `json:"clear,omitempty"`
}

// NewNtfySender creates a new ntfy sender
func NewNtfySender(cfg config.NtfyConfig, log *zap.SugaredLogger) *NtfySender {
	return &NtfySender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// Enabled reports whether notifications will be sent
func (n *NtfySender) Enabled() bool {
	return n != nil && n.cfg.Enabled && n.cfg.Topic != ""
}

// SendMigrationSummary reports the outcome of a run. failed > 0 raises the priority.
// publicURL, when set, becomes a button that opens the bucket listing.
func (n *NtfySender) SendMigrationSummary(ctx context.Context, summary string, failed int, publicURL string) error {
	if !n.Enabled() {
		return nil
	}

	msg := NtfyMessage{
		Title:    "📸 Media migration complete",
		Message:  summary,
		Priority: 3,
		Tags:     []string{"white_check_mark"},
	}
	if failed > 0 {
		msg.Title = fmt.Sprintf("⚠️ Media migration finished with %d failures", failed)
		msg.Priority = 4
		msg.Tags = []string{"warning"}
	}
	if publicURL != "" {
		msg.Actions = []NtfyAction{{Action: "view", Label: "Open storage", URL: publicURL}}
	}

	return n.Send(ctx, msg)
}

// Send posts msg to the configured topic, using headers for the metadata
func (n *NtfySender) Send(ctx context.Context, msg NtfyMessage) error {
	url := fmt.Sprintf("%s/%s", strings.TrimRight(n.cfg.Server, "/"), n.cfg.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(msg.Message))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Title", msg.Title)
	if msg.Priority > 0 {
		req.Header.Set("Priority", fmt.Sprintf("%d", msg.Priority))
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	if len(msg.Actions) > 0 {
		actionsJSON, err := json.Marshal(msg.Actions)
		if err != nil {
			return fmt.Errorf("failed to encode actions: %w", err)
		}
		req.Header.Set("Actions", string(actionsJSON))
	}

	n.log.Debugf("📤 Sending ntfy notification: %s", msg.Title)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}

	n.log.Infof("📱 ntfy notification sent: %s", msg.Title)
	return nil
}
