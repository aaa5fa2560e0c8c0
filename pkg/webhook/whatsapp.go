package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// whatsappPayload is the slice of the WhatsApp Cloud API's webhook body
// this package reads.
type whatsappPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []struct {
					From string `json:"from"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
					Type string `json:"type"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// WhatsAppAdapter implements Adapter for the WhatsApp Cloud API.
type WhatsAppAdapter struct {
	secret        string
	verifyToken   string
	accessToken   string
	phoneNumberID string
	client        *http.Client
	apiBase       string
}

// NewWhatsAppAdapter builds a WhatsAppAdapter. accessToken/phoneNumberID
// authorize outbound Send API calls and may be empty if replies are
// relayed elsewhere.
func NewWhatsAppAdapter(secret, verifyToken, accessToken, phoneNumberID string) *WhatsAppAdapter {
	return &WhatsAppAdapter{
		secret:        secret,
		verifyToken:   verifyToken,
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		client:        &http.Client{Timeout: 10 * time.Second},
		apiBase:       "https://graph.facebook.com/v19.0",
	}
}

func (a *WhatsAppAdapter) Name() string   { return "whatsapp" }
func (a *WhatsAppAdapter) Secret() string { return a.secret }

func (a *WhatsAppAdapter) VerifyChallenge(query map[string]string) (string, error) {
	if query["hub.mode"] != "subscribe" {
		return "", errors.New("unexpected hub.mode")
	}
	if subtle.ConstantTimeCompare([]byte(query["hub.verify_token"]), []byte(a.verifyToken)) != 1 {
		return "", errors.New("verify token mismatch")
	}
	return query["hub.challenge"], nil
}

func (a *WhatsAppAdapter) ParseEvents(body []byte) ([]Event, error) {
	var payload whatsappPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse whatsapp payload: %w", err)
	}

	var events []Event
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				if m.Type != "text" || m.Text.Body == "" {
					continue // media, reaction, status update, etc.
				}
				events = append(events, Event{
					RecipientPlatformID: change.Value.Metadata.PhoneNumberID,
					SenderPlatformID:    m.From,
					Text:                m.Text.Body,
				})
			}
		}
	}
	return events, nil
}

func (a *WhatsAppAdapter) SendReply(ctx context.Context, senderPlatformID, text string) error {
	if a.accessToken == "" {
		return errors.New("whatsapp: no access token configured")
	}

	payload, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"to":                senderPlatformID,
		"type":              "text",
		"text":              map[string]string{"body": text},
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/%s/messages", a.apiBase, a.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.accessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp send: status %d", resp.StatusCode)
	}
	return nil
}
