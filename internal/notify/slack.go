package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const defaultSlackTimeout = 10 * time.Second

// Slack posts messages to an incoming webhook
type Slack struct {
	webhook string
	client  *http.Client
}

// NewSlack creates a Slack sender for webhook
func NewSlack(webhook string) *Slack {
	return &Slack{
		webhook: webhook,
		client:  &http.Client{Timeout: defaultSlackTimeout},
	}
}

func (s *Slack) Name() string {
	return "slack"
}

func (s *Slack) Send(ctx context.Context, _ string, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return errors.Wrap(err, "failed to encode slack payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhook, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to create slack request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to post slack webhook")
	}
	defer resp.Body.Close()

	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("slack webhook returned status %s", resp.Status)
	}

	return nil
}
