// Package crm implements interfaces.CRMAdapter for each supported backend
// (Chatwoot contacts, EspoCRM, HubSpot), each an HTTP client constructed
// from one tenant's CRMConfig/ChannelAPIConfig block, grounded on
// original_source/veridata/veridata_bot/app/integrations/{chatwoot,hubspot}.py
// and veridata_sync/app/services/crm.py's per-adapter isolation.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
)

// ChatwootAdapter syncs leads/contacts/summaries as Chatwoot contacts and
// conversation notes. Chatwoot has no native "lead" object, so sync_lead
// and sync_contact both upsert a contact.
type ChatwootAdapter struct {
	baseURL   string
	apiToken  string
	accountID int
	client    *http.Client
}

var _ interfaces.CRMAdapter = (*ChatwootAdapter)(nil)

func NewChatwootAdapter(baseURL, apiToken string, accountID int, timeout time.Duration) *ChatwootAdapter {
	if accountID == 0 {
		accountID = 1
	}
	return &ChatwootAdapter{baseURL: baseURL, apiToken: apiToken, accountID: accountID, client: &http.Client{Timeout: timeout}}
}

func (a *ChatwootAdapter) Name() string { return "chatwoot" }

type chatwootContactSearchResponse struct {
	Payload []struct {
		ID int `json:"id"`
	} `json:"payload"`
}

// findContact looks up a Chatwoot contact by email or phone. Missing
// identifiers are the caller's responsibility to skip before calling this.
func (a *ChatwootAdapter) findContact(ctx context.Context, email, phone string) (int, bool, error) {
	query := email
	if query == "" {
		query = phone
	}
	if query == "" {
		return 0, false, nil
	}

	url := fmt.Sprintf("%s/api/v1/accounts/%d/contacts/search?q=%s", a.baseURL, a.accountID, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("api_access_token", a.apiToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, false, fmt.Errorf("chatwoot contact search returned %d: %s", resp.StatusCode, body)
	}

	var parsed chatwootContactSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, false, err
	}
	if len(parsed.Payload) == 0 {
		return 0, false, nil
	}
	return parsed.Payload[0].ID, true, nil
}

type chatwootUpsertContactRequest struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone_number,omitempty"`
}

// SyncLead upserts a Chatwoot contact by email or phone. Missing both
// identifiers is skipped with a log, never an error.
func (a *ChatwootAdapter) SyncLead(ctx context.Context, name, email, phone string) error {
	if email == "" && phone == "" {
		logger.Warnf(ctx, "[CRM][chatwoot] cannot sync lead %q without email or phone", name)
		return nil
	}

	contactID, found, err := a.findContact(ctx, email, phone)
	if err != nil {
		return fmt.Errorf("find contact: %w", err)
	}

	body, err := json.Marshal(chatwootUpsertContactRequest{Name: name, Email: email, Phone: phone})
	if err != nil {
		return fmt.Errorf("marshal contact: %w", err)
	}

	method, url := http.MethodPost, fmt.Sprintf("%s/api/v1/accounts/%d/contacts", a.baseURL, a.accountID)
	if found {
		method, url = http.MethodPut, fmt.Sprintf("%s/api/v1/accounts/%d/contacts/%d", a.baseURL, a.accountID, contactID)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_access_token", a.apiToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chatwoot contact upsert returned %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

// SyncContact is the same upsert as SyncLead, read from the normalized
// ContactInfo payload.
func (a *ChatwootAdapter) SyncContact(ctx context.Context, contact types.ContactInfo) error {
	return a.SyncLead(ctx, contact.Name, contact.Email, contact.Phone)
}

// UpdateLeadSummary finds the contact and posts the formatted summary as a
// note on the contact itself, via Chatwoot's contact notes endpoint
// (/contacts/{id}/notes).
func (a *ChatwootAdapter) UpdateLeadSummary(ctx context.Context, email, phone string, summary *types.ConversationSummary) error {
	contactID, found, err := a.findContact(ctx, email, phone)
	if err != nil {
		return fmt.Errorf("find contact: %w", err)
	}
	if !found {
		logger.Warnf(ctx, "[CRM][chatwoot] could not find contact to attach summary (email=%q phone=%q)", email, phone)
		return nil
	}

	note := formatSummaryNote(summary)
	url := fmt.Sprintf("%s/api/v1/accounts/%d/contacts/%d/notes", a.baseURL, a.accountID, contactID)
	body, err := json.Marshal(map[string]string{"content": note})
	if err != nil {
		return fmt.Errorf("marshal note: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_access_token", a.apiToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chatwoot note create returned %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

// formatSummaryNote renders a ConversationSummary as the Markdown note
// body every CRM adapter attaches, matching ai_summary's own Markdown
// convention.
func formatSummaryNote(s *types.ConversationSummary) string {
	return fmt.Sprintf(
		"**Purchase Intent:** %s\n**Urgency:** %s\n**Sentiment:** %s\n\n%s\n\n_%s — %s_",
		s.PurchaseIntent, s.UrgencyLevel, s.SentimentScore, s.AISummary, s.ConversationStart, s.ConversationEnd,
	)
}
