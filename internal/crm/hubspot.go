package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
)

const hubspotBaseURL = "https://api.hubapi.com"

// HubSpotAdapter syncs leads as HubSpot contacts and attaches summaries as
// Notes, grounded line-for-line on HubSpotClient's search-then-upsert
// pattern and its Note-to-Contact association (associationTypeId 202).
type HubSpotAdapter struct {
	accessToken string
	client      *http.Client
}

var _ interfaces.CRMAdapter = (*HubSpotAdapter)(nil)

func NewHubSpotAdapter(accessToken string, timeout time.Duration) *HubSpotAdapter {
	return &HubSpotAdapter{accessToken: accessToken, client: &http.Client{Timeout: timeout}}
}

func (a *HubSpotAdapter) Name() string { return "hubspot" }

func (a *HubSpotAdapter) authHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.accessToken)
	req.Header.Set("Content-Type", "application/json")
}

type hubspotSearchRequest struct {
	FilterGroups []hubspotFilterGroup `json:"filterGroups"`
	Properties   []string             `json:"properties"`
	Limit        int                  `json:"limit"`
}

type hubspotFilterGroup struct {
	Filters []hubspotFilter `json:"filters"`
}

type hubspotFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type hubspotSearchResponse struct {
	Total   int `json:"total"`
	Results []struct {
		ID string `json:"id"`
	} `json:"results"`
}

// searchContact looks up a contact id by email or phone, each tried as its
// own filter group (an OR across groups, matching the Python client's
// separate email/phone filterGroups entries).
func (a *HubSpotAdapter) searchContact(ctx context.Context, email, phone string) (string, bool, error) {
	var groups []hubspotFilterGroup
	if email != "" {
		groups = append(groups, hubspotFilterGroup{Filters: []hubspotFilter{{PropertyName: "email", Operator: "EQ", Value: email}}})
	}
	if phone != "" {
		groups = append(groups, hubspotFilterGroup{Filters: []hubspotFilter{{PropertyName: "phone", Operator: "EQ", Value: phone}}})
	}
	if len(groups) == 0 {
		return "", false, nil
	}

	body, err := json.Marshal(hubspotSearchRequest{
		FilterGroups: groups,
		Properties:   []string{"id", "email", "firstname", "lastname"},
		Limit:        1,
	})
	if err != nil {
		return "", false, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hubspotBaseURL+"/crm/v3/objects/contacts/search", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build search request: %w", err)
	}
	a.authHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		logger.Errorf(ctx, "[CRM][hubspot] contact search failed: status=%d body=%s", resp.StatusCode, respBody)
		return "", false, fmt.Errorf("hubspot contact search returned %d", resp.StatusCode)
	}

	var parsed hubspotSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, err
	}
	if parsed.Total == 0 || len(parsed.Results) == 0 {
		return "", false, nil
	}
	return parsed.Results[0].ID, true, nil
}

// SyncLead creates or updates a contact, splitting name into
// firstname/lastname the way the Python client does.
func (a *HubSpotAdapter) SyncLead(ctx context.Context, name, email, phone string) error {
	if email == "" && phone == "" {
		logger.Warnf(ctx, "[CRM][hubspot] cannot sync lead %q without email or phone", name)
		return nil
	}

	contactID, found, err := a.searchContact(ctx, email, phone)
	if err != nil {
		return fmt.Errorf("search contact: %w", err)
	}

	properties := map[string]string{}
	if email != "" {
		properties["email"] = email
	}
	if phone != "" {
		properties["phone"] = phone
	}
	if name != "" {
		parts := strings.SplitN(name, " ", 2)
		properties["firstname"] = parts[0]
		if len(parts) > 1 {
			properties["lastname"] = parts[1]
		} else {
			properties["lastname"] = "Unknown"
		}
	}

	body, err := json.Marshal(map[string]interface{}{"properties": properties})
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}

	method, url := http.MethodPost, hubspotBaseURL+"/crm/v3/objects/contacts"
	if found {
		method, url = http.MethodPatch, hubspotBaseURL+"/crm/v3/objects/contacts/"+contactID
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	a.authHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("hubspot contact upsert returned %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

// SyncContact maps the normalized ContactInfo onto SyncLead.
func (a *HubSpotAdapter) SyncContact(ctx context.Context, contact types.ContactInfo) error {
	return a.SyncLead(ctx, contact.Name, contact.Email, contact.Phone)
}

type hubspotNoteAssociation struct {
	To    hubspotAssociationTarget `json:"to"`
	Types []hubspotAssociationType `json:"types"`
}

type hubspotAssociationTarget struct {
	ID string `json:"id"`
}

type hubspotAssociationType struct {
	AssociationCategory string `json:"associationCategory"`
	AssociationTypeID   int    `json:"associationTypeId"`
}

// UpdateLeadSummary finds the contact and attaches the summary as a Note
// engagement, associated to the contact via associationTypeId 202
// (Note-to-Contact), matching HubSpotClient.update_lead_summary.
func (a *HubSpotAdapter) UpdateLeadSummary(ctx context.Context, email, phone string, summary *types.ConversationSummary) error {
	contactID, found, err := a.searchContact(ctx, email, phone)
	if err != nil {
		return fmt.Errorf("search contact: %w", err)
	}
	if !found {
		logger.Warnf(ctx, "[CRM][hubspot] could not find contact to attach summary (email=%q phone=%q)", email, phone)
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"properties": map[string]string{"hs_note_body": formatSummaryNote(summary)},
		"associations": []hubspotNoteAssociation{{
			To:    hubspotAssociationTarget{ID: contactID},
			Types: []hubspotAssociationType{{AssociationCategory: "HUBSPOT_DEFINED", AssociationTypeID: 202}},
		}},
	})
	if err != nil {
		return fmt.Errorf("marshal note: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hubspotBaseURL+"/crm/v3/objects/notes", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	a.authHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("hubspot note create returned %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
