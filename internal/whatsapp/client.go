// Package whatsapp provides the outbound client for the messaging
// provider (Cloud API shaped). Delivery, read receipts, and template
// approval are the provider's concern; this client only sends.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadchat_backend/platform/config"
	"leadchat_backend/platform/logger"
	"leadchat_backend/platform/phone"
)

// Button is one quick-reply button on an interactive message.
// The provider caps interactive messages at three buttons.
type Button struct {
	ID    string
	Title string
}

// ListRow is one selectable row in a list message.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// Sender is the outbound surface the engine depends on.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendButtons(ctx context.Context, to, body string, buttons []Button) error
	SendList(ctx context.Context, to, body, buttonLabel string, rows []ListRow) error
}

// Client talks to the provider's message-send endpoint.
type Client struct {
	baseURL       string
	accessToken   string
	phoneNumberID string
	http          *http.Client
	log           *logger.Logger
}

// NewClient builds a provider client. Returns nil when the provider is
// not configured (tests and local runs without credentials).
func NewClient(cfg config.ProviderConfig, log *logger.Logger) *Client {
	if cfg.GetProviderAccessToken() == "" || cfg.GetProviderPhoneNumberID() == "" {
		return nil
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.GetProviderAPIURL(), "/"),
		accessToken:   cfg.GetProviderAccessToken(),
		phoneNumberID: cfg.GetProviderPhoneNumberID(),
		http:          &http.Client{Timeout: 10 * time.Second},
		log:           log,
	}
}

type sendRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *textBody    `json:"text,omitempty"`
	Interactive      *interactive `json:"interactive,omitempty"`
}

type textBody struct {
	Body string `json:"body"`
}

type interactive struct {
	Type   string             `json:"type"` // button | list
	Body   interactiveBody    `json:"body"`
	Action *interactiveAction `json:"action,omitempty"`
}

type interactiveBody struct {
	Text string `json:"text"`
}

type interactiveAction struct {
	Buttons  []interactiveButton `json:"buttons,omitempty"`
	Button   string              `json:"button,omitempty"`
	Sections []listSection       `json:"sections,omitempty"`
}

type interactiveButton struct {
	Type  string      `json:"type"`
	Reply buttonReply `json:"reply"`
}

type buttonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type listSection struct {
	Title string        `json:"title,omitempty"`
	Rows  []listRowBody `json:"rows"`
}

type listRowBody struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               normalizeTo(to),
		Type:             "text",
		Text:             &textBody{Body: body},
	})
}

// SendButtons sends an interactive message with up to three reply buttons.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []Button) error {
	if len(buttons) == 0 {
		return c.SendText(ctx, to, body)
	}
	if len(buttons) > 3 {
		buttons = buttons[:3]
	}

	converted := make([]interactiveButton, len(buttons))
	for i, b := range buttons {
		converted[i] = interactiveButton{
			Type:  "reply",
			Reply: buttonReply{ID: b.ID, Title: b.Title},
		}
	}

	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               normalizeTo(to),
		Type:             "interactive",
		Interactive: &interactive{
			Type:   "button",
			Body:   interactiveBody{Text: body},
			Action: &interactiveAction{Buttons: converted},
		},
	})
}

// SendList sends an interactive list message (slot pickers).
func (c *Client) SendList(ctx context.Context, to, body, buttonLabel string, rows []ListRow) error {
	if len(rows) == 0 {
		return c.SendText(ctx, to, body)
	}

	converted := make([]listRowBody, len(rows))
	for i, row := range rows {
		converted[i] = listRowBody{ID: row.ID, Title: row.Title, Description: row.Description}
	}

	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               normalizeTo(to),
		Type:             "interactive",
		Interactive: &interactive{
			Type: "list",
			Body: interactiveBody{Text: body},
			Action: &interactiveAction{
				Button:   buttonLabel,
				Sections: []listSection{{Rows: converted}},
			},
		},
	})
}

func (c *Client) send(ctx context.Context, payload sendRequest) error {
	if c == nil {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal provider payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Debug("provider message sent", "to", payload.To, "type", payload.Type)
	return nil
}

func normalizeTo(to string) string {
	return strings.TrimPrefix(phone.NormalizeE164(to), "+")
}
