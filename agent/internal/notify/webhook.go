package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Webhook types.
const (
	TypeSlack = "slack"
	TypeTeams = "teams"
	TypeHTTP  = "http"
)

// Report summarises one fmpost run.
type Report struct {
	RunID    string        `json:"run_id"`
	Host     string        `json:"host,omitempty"`
	JSONFile string        `json:"json_file"`
	Result   string        `json:"result"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Notifier delivers run reports to one webhook. A nil Notifier or one with
// an empty URL does nothing.
type Notifier struct {
	kind   string
	url    string
	client *http.Client
}

// New returns a Notifier for the given webhook type and URL.
func New(kind, url string) *Notifier {
	return &Notifier{
		kind:   kind,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify sends r. Delivery errors are logged and returned; callers treat
// them as non-fatal.
func (n *Notifier) Notify(ctx context.Context, r Report) error {
	if n == nil || n.url == "" {
		return nil
	}

	var body []byte
	switch n.kind {
	case TypeSlack:
		body, _ = json.Marshal(map[string]string{"text": summary(r)})
	case TypeTeams:
		body, _ = json.Marshal(map[string]interface{}{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": resultColor(r.Result),
			"summary":    "fmpost " + r.Result,
			"title":      fmt.Sprintf("fmpost: %s", r.Result),
			"text":       summary(r),
		})
	case TypeHTTP, "":
		body, _ = json.Marshal(map[string]interface{}{"report": r})
	default:
		slog.Warn("notify: unknown webhook type, skipping", "type", n.kind)
		return nil
	}

	if err := n.post(ctx, body); err != nil {
		slog.Error("notify: webhook delivery failed", "type", n.kind, "err", err)
		return err
	}
	slog.Debug("notify: webhook delivered", "type", n.kind, "result", r.Result)
	return nil
}

func (n *Notifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func summary(r Report) string {
	s := fmt.Sprintf("*%s* posting %s (run %s", labelFor(r.Result), r.JSONFile, r.RunID)
	if r.Host != "" {
		s += " on " + r.Host
	}
	s += fmt.Sprintf(", %s)", r.Duration.Round(time.Second))
	if r.Error != "" {
		s += ": " + r.Error
	}
	return s
}

func labelFor(result string) string {
	if result == "success" {
		return "[OK]"
	}
	return "[FAILED]"
}

func resultColor(result string) string {
	if result == "success" {
		return "2EB67D"
	}
	return "FF4F6A"
}
