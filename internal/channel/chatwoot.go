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

// ChatwootSender sends replies into a Chatwoot conversation and toggles its
// status between "open" (human handoff) and "pending" (bot-owned),
// grounded on the original ChatwootClient's send_message/toggle_status
// pair.
type ChatwootSender struct {
	baseURL   string
	apiToken  string
	accountID int
	client    *http.Client
}

var _ interfaces.ChannelSender = (*ChatwootSender)(nil)

// NewChatwootSender builds a sender bound to one Chatwoot account.
func NewChatwootSender(baseURL, apiToken string, accountID int, timeout time.Duration) *ChatwootSender {
	if accountID == 0 {
		accountID = 1
	}
	return &ChatwootSender{
		baseURL:   baseURL,
		apiToken:  apiToken,
		accountID: accountID,
		client:    &http.Client{Timeout: timeout},
	}
}

type chatwootSendMessageRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	Private     bool   `json:"private"`
}

// SendText posts {content, message_type:"outgoing", private:false} to
// /api/v1/accounts/{account_id}/conversations/{conv}/messages. externalID
// is the Chatwoot conversation id.
func (s *ChatwootSender) SendText(ctx context.Context, externalID, text string) error {
	body, err := json.Marshal(chatwootSendMessageRequest{Content: text, MessageType: "outgoing", Private: false})
	if err != nil {
		return fmt.Errorf("marshal chatwoot request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/accounts/%d/conversations/%s/messages", s.baseURL, s.accountID, externalID)
	if err := s.doPost(ctx, url, body); err != nil {
		return fmt.Errorf("chatwoot send message: %w", err)
	}
	return nil
}

type chatwootToggleStatusRequest struct {
	Status string `json:"status"`
}

// SetHumanHandoff toggles the conversation to "open" (visible to human
// agents) when requiresHuman, otherwise "pending" (bot-owned), mirroring
// handle_chatwoot_response's handover branch.
func (s *ChatwootSender) SetHumanHandoff(ctx context.Context, externalID string, requiresHuman bool) error {
	status := "pending"
	if requiresHuman {
		status = "open"
	}
	body, err := json.Marshal(chatwootToggleStatusRequest{Status: status})
	if err != nil {
		return fmt.Errorf("marshal chatwoot status request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/accounts/%d/conversations/%s/toggle_status", s.baseURL, s.accountID, externalID)
	if err := s.doPost(ctx, url, body); err != nil {
		return fmt.Errorf("chatwoot toggle status: %w", err)
	}
	return nil
}

// UpdateContact syncs email/phone discovered by the agent back onto the
// Chatwoot contact record, the auto-sync half of handle_chatwoot_response.
func (s *ChatwootSender) UpdateContact(ctx context.Context, contactID, email, phone string) error {
	payload := map[string]string{}
	if email != "" {
		payload["email"] = email
	}
	if phone != "" {
		payload["phone_number"] = phone
	}
	if len(payload) == 0 {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal chatwoot contact update: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/accounts/%d/contacts/%s", s.baseURL, s.accountID, contactID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build chatwoot contact update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_access_token", s.apiToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("chatwoot update contact: %w", err)
	}
	defer resp.Body.Close()

	// Chatwoot returns 422 when the email is already claimed by another
	// contact; log and move on rather than fail the whole sync, matching
	// update_contact's warn-and-continue behavior.
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		logger.Warnf(ctx, "[Chatwoot] update contact %s failed: status=%d body=%s", contactID, resp.StatusCode, respBody)
	}
	return nil
}

func (s *ChatwootSender) doPost(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_access_token", s.apiToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		logger.Errorf(ctx, "[Chatwoot] request to %s failed: status=%d body=%s", url, resp.StatusCode, respBody)
		return fmt.Errorf("chatwoot request returned status %d", resp.StatusCode)
	}
	return nil
}
