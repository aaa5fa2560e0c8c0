package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// messengerPayload is the slice of Facebook Messenger's webhook body this
// package reads. Only the fields the pipeline needs are modeled; the rest
// of the payload's shape is out of scope (spec.md section 2).
type messengerPayload struct {
	Entry []struct {
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Recipient struct {
				ID string `json:"id"`
			} `json:"recipient"`
			Message *struct {
				Text string `json:"text"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// MessengerAdapter implements Adapter for Facebook Messenger.
type MessengerAdapter struct {
	secret      string
	verifyToken string
	pageToken   string
	client      *http.Client
	apiBase     string
}

// NewMessengerAdapter builds a MessengerAdapter. verifyToken is what
// Facebook echoes back during the webhook subscription handshake;
// pageToken authorizes outbound Send API calls and may be empty if replies
// are relayed elsewhere.
func NewMessengerAdapter(secret, verifyToken, pageToken string) *MessengerAdapter {
	return &MessengerAdapter{
		secret:      secret,
		verifyToken: verifyToken,
		pageToken:   pageToken,
		client:      &http.Client{Timeout: 10 * time.Second},
		apiBase:     "https://graph.facebook.com/v19.0",
	}
}

func (a *MessengerAdapter) Name() string   { return "facebook" }
func (a *MessengerAdapter) Secret() string { return a.secret }

func (a *MessengerAdapter) VerifyChallenge(query map[string]string) (string, error) {
	if query["hub.mode"] != "subscribe" {
		return "", errors.New("unexpected hub.mode")
	}
	if subtle.ConstantTimeCompare([]byte(query["hub.verify_token"]), []byte(a.verifyToken)) != 1 {
		return "", errors.New("verify token mismatch")
	}
	return query["hub.challenge"], nil
}

func (a *MessengerAdapter) ParseEvents(body []byte) ([]Event, error) {
	var payload messengerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse messenger payload: %w", err)
	}

	var events []Event
	for _, entry := range payload.Entry {
		for _, m := range entry.Messaging {
			if m.Message == nil || m.Message.Text == "" {
				continue // delivery receipt, read marker, postback, etc.
			}
			events = append(events, Event{
				RecipientPlatformID: m.Recipient.ID,
				SenderPlatformID:    m.Sender.ID,
				Text:                m.Message.Text,
			})
		}
	}
	return events, nil
}

func (a *MessengerAdapter) SendReply(ctx context.Context, senderPlatformID, text string) error {
	if a.pageToken == "" {
		return errors.New("messenger: no page access token configured")
	}

	payload, err := json.Marshal(map[string]any{
		"recipient": map[string]string{"id": senderPlatformID},
		"message":   map[string]string{"text": text},
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", a.apiBase, url.QueryEscape(a.pageToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("messenger send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("messenger send: status %d", resp.StatusCode)
	}
	return nil
}
