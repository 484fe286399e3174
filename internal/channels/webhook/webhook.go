// Package webhook is a generic outbound-webhook Channel adapter: it
// POSTs a JSON payload to a configured URL instead of speaking a
// specific chat platform's wire protocol. Its credential (a bearer
// token) is resolved through the OS keyring rather than stored
// alongside job or channel configuration.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/nextlevelbuilder/goclaw/internal/channels"
)

const keyringService = "goclaw-cron-webhook"

// StoreToken saves the bearer token for a channel ID in the OS
// keyring, so no credential ever lives in the job store or in code.
func StoreToken(channelID, token string) error {
	return keyring.Set(keyringService, channelID, token)
}

func resolveToken(channelID string) string {
	val, err := keyring.Get(keyringService, channelID)
	if err != nil {
		return ""
	}
	return val
}

// Channel posts a SendRequest as JSON to a fixed URL. The
// request carries an Authorization: Bearer header when a token is
// present in the keyring for its ID.
type Channel struct {
	id         string
	url        string
	httpClient *http.Client
}

// New constructs a webhook channel that delivers to url under id. id
// must be one of channels.KnownIDs so the registry will accept it.
func New(id, url string) *Channel {
	return &Channel{
		id:         id,
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Channel) ID() string { return c.id }

// Available reports whether the channel has a destination URL
// configured. It does not probe the network.
func (c *Channel) Available() bool { return c.url != "" }

type outboundPayload struct {
	ChatID    string   `json:"chatId"`
	Content   string   `json:"content"`
	ReplyToID string   `json:"replyToId,omitempty"`
	MediaURLs []string `json:"mediaUrls,omitempty"`
}

type inboundResponse struct {
	MessageID string `json:"messageId"`
}

func (c *Channel) SendMessage(ctx context.Context, req channels.SendRequest) (channels.SendResult, error) {
	if !c.Available() {
		return channels.SendResult{}, fmt.Errorf("webhook channel %s: no url configured", c.id)
	}

	body, err := json.Marshal(outboundPayload{ChatID: req.ChatID, Content: req.Content, ReplyToID: req.ReplyToID, MediaURLs: req.MediaURLs})
	if err != nil {
		return channels.SendResult{}, fmt.Errorf("webhook channel %s: marshal: %w", c.id, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return channels.SendResult{}, fmt.Errorf("webhook channel %s: build request: %w", c.id, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token := resolveToken(c.id); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return channels.SendResult{}, fmt.Errorf("webhook channel %s: %w", c.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return channels.SendResult{Success: false, Error: resp.Status}, fmt.Errorf("webhook channel %s: status %s", c.id, resp.Status)
	}

	var parsed inboundResponse
	_ = json.NewDecoder(resp.Body).Decode(&parsed)
	return channels.SendResult{Success: true, MessageID: parsed.MessageID}, nil
}
