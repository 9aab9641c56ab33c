// Package channel implements interfaces.ChannelSender for each inbound
// messaging front: Evolution (WhatsApp gateway), Telegram, and Chatwoot.
// Each sender is a thin HTTP client built per-tenant from the channel's
// ChannelAPIConfig block, following the JinaReranker idiom of one
// *http.Client per adapter instance with a hard request timeout.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/types/interfaces"
)

// EvolutionSender sends WhatsApp-gateway replies through an Evolution API
// instance. SetHumanHandoff is a no-op: Evolution carries no conversation
// status concept, unlike Chatwoot.
type EvolutionSender struct {
	baseURL  string
	apiKey   string
	instance string
	client   *http.Client
}

var _ interfaces.ChannelSender = (*EvolutionSender)(nil)

// NewEvolutionSender builds a sender bound to one Evolution instance.
func NewEvolutionSender(baseURL, apiKey, instance string, timeout time.Duration) *EvolutionSender {
	return &EvolutionSender{
		baseURL:  baseURL,
		apiKey:   apiKey,
		instance: instance,
		client:   &http.Client{Timeout: timeout},
	}
}

type evolutionSendTextRequest struct {
	Number  string                   `json:"number"`
	Text    string                   `json:"text"`
	Options evolutionSendTextOptions `json:"options"`
}

type evolutionSendTextOptions struct {
	Delay    int    `json:"delay"`
	Presence string `json:"presence"`
}

// SendText posts {number, text, options:{delay, presence}} to
// /message/sendText/{instance}, exactly the shape the Python prototype
// sends.
func (s *EvolutionSender) SendText(ctx context.Context, externalID, text string) error {
	body, err := json.Marshal(evolutionSendTextRequest{
		Number: externalID,
		Text:   text,
		Options: evolutionSendTextOptions{
			Delay:    5000,
			Presence: "composing",
		},
	})
	if err != nil {
		return fmt.Errorf("marshal evolution request: %w", err)
	}

	url := fmt.Sprintf("%s/message/sendText/%s", s.baseURL, s.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build evolution request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send evolution message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		logger.Errorf(ctx, "[Evolution] sendText failed: status=%d body=%s", resp.StatusCode, respBody)
		return fmt.Errorf("evolution sendText returned status %d", resp.StatusCode)
	}
	return nil
}

// SetHumanHandoff is a no-op: Evolution has no status concept to flip.
func (s *EvolutionSender) SetHumanHandoff(ctx context.Context, externalID string, requiresHuman bool) error {
	return nil
}
