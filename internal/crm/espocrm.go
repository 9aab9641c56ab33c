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

// EspoCRMAdapter syncs leads through EspoCRM's REST API, grounded on
// veridata_sync's sync_lead_to_crm (POST /api/v1/Lead, X-Api-Key auth).
type EspoCRMAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ interfaces.CRMAdapter = (*EspoCRMAdapter)(nil)

func NewEspoCRMAdapter(baseURL, apiKey string, timeout time.Duration) *EspoCRMAdapter {
	return &EspoCRMAdapter{baseURL: baseURL, apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

func (a *EspoCRMAdapter) Name() string { return "espocrm" }

type espoLead struct {
	Name         string `json:"name,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	Description  string `json:"description,omitempty"`
}

// SyncLead creates a Lead record. EspoCRM's Lead entity has no
// upsert-by-identifier endpoint, so repeated syncs of the same person
// create additional Lead records; deduplication is left to EspoCRM's own
// duplicate-check feature (left enabled, unlike the sync service's
// X-Skip-Duplicate-Check header).
func (a *EspoCRMAdapter) SyncLead(ctx context.Context, name, email, phone string) error {
	if email == "" && phone == "" {
		logger.Warnf(ctx, "[CRM][espocrm] cannot sync lead %q without email or phone", name)
		return nil
	}
	return a.createLead(ctx, espoLead{Name: name, EmailAddress: email, PhoneNumber: phone})
}

// SyncContact maps the normalized ContactInfo onto the same Lead create
// call; EspoCRM's Contact entity requires an Account link this adapter
// doesn't have enough information to supply, so leads are used uniformly.
func (a *EspoCRMAdapter) SyncContact(ctx context.Context, contact types.ContactInfo) error {
	if contact.Email == "" && contact.Phone == "" {
		logger.Warnf(ctx, "[CRM][espocrm] cannot sync contact %q without email or phone", contact.Name)
		return nil
	}
	return a.createLead(ctx, espoLead{
		Name:         contact.Name,
		EmailAddress: contact.Email,
		PhoneNumber:  contact.Phone,
		Description:  contact.Industry,
	})
}

// UpdateLeadSummary attaches the summary as the new Lead's description;
// EspoCRM's stream/note API requires a parent entity id this adapter does
// not track across calls, so a fresh Lead carrying the summary is created
// instead of updating one in place.
func (a *EspoCRMAdapter) UpdateLeadSummary(ctx context.Context, email, phone string, summary *types.ConversationSummary) error {
	if email == "" && phone == "" {
		logger.Warnf(ctx, "[CRM][espocrm] cannot attach summary without email or phone")
		return nil
	}
	return a.createLead(ctx, espoLead{
		EmailAddress: email,
		PhoneNumber:  phone,
		Description:  formatSummaryNote(summary),
	})
}

func (a *EspoCRMAdapter) createLead(ctx context.Context, lead espoLead) error {
	body, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("marshal lead: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v1/Lead", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("espocrm lead create returned %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
