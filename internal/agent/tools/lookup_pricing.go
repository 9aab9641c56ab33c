package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
	"github.com/veridesk/platform/internal/utils"
)

var lookupPricingTool = BaseTool{
	name: NameLookupPricing,
	description: `Look up pricing for an item or service configured for this tenant.

Call with no item (or an empty string) to list everything the tenant has
priced. Call with an item name to look up a specific price; matching is
case-insensitive and matches on substrings of the configured item name.`,
	schema: utils.GenerateSchema[LookupPricingInput](),
}

// LookupPricingInput is the model-supplied argument for lookup_pricing.
type LookupPricingInput struct {
	Item string `json:"item,omitempty" jsonschema:"The item or service to look up the price of. Leave empty to list all priced items."`
}

// LookupPricingTool performs a structured lookup against the tenant's
// configured pricing table.
type LookupPricingTool struct {
	BaseTool
	tenants interfaces.TenantRegistry
}

// NewLookupPricingTool builds the lookup_pricing tool backed by tenants.
func NewLookupPricingTool(tenants interfaces.TenantRegistry) *LookupPricingTool {
	return &LookupPricingTool{BaseTool: lookupPricingTool, tenants: tenants}
}

// Execute looks up pricing for the tenant found on ctx.
func (t *LookupPricingTool) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var input LookupPricingInput
	if len(args) > 0 {
		if err := json.Unmarshal(args, &input); err != nil {
			logger.Errorf(ctx, "[Tool][LookupPricing] failed to parse args: %v", err)
			return &types.ToolResult{Success: false, Error: fmt.Sprintf("failed to parse args: %v", err)}, err
		}
	}

	tenantID, _ := ctx.Value(types.TenantIDContextKey).(uint64)

	config, _, err := t.tenants.LoadConfig(ctx, tenantID)
	if err != nil {
		logger.Errorf(ctx, "[Tool][LookupPricing] failed to load tenant config: %v", err)
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("failed to load pricing configuration: %v", err)}, err
	}

	matches := config.Pricing
	if needle := strings.ToLower(strings.TrimSpace(input.Item)); needle != "" {
		matches = make([]types.PricingItem, 0, len(config.Pricing))
		for _, item := range config.Pricing {
			if strings.Contains(strings.ToLower(item.Item), needle) {
				matches = append(matches, item)
			}
		}
	}

	if len(matches) == 0 {
		return &types.ToolResult{
			Success: true,
			Output:  "No pricing information found for that item.",
			Data:    map[string]interface{}{"matches": 0},
		}, nil
	}

	var sb strings.Builder
	for _, item := range matches {
		currency := item.Currency
		if currency == "" {
			currency = "USD"
		}
		fmt.Fprintf(&sb, "%s: %.2f %s", item.Item, item.Price, currency)
		if item.Description != "" {
			fmt.Fprintf(&sb, " - %s", item.Description)
		}
		sb.WriteString("\n")
	}

	return &types.ToolResult{
		Success: true,
		Output:  sb.String(),
		Data:    map[string]interface{}{"matches": len(matches)},
	}, nil
}
