package repository

import (
	"context"
	"encoding/json"

	"github.com/veridesk/platform/internal/types"
	"gorm.io/gorm"
)

// TenantRepository is the thin read path onto the tenants table that the
// RAG engine needs for language adaptation, and the same table QuotaGuard's
// usage_count/quota_limit counters are read through.
type TenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository builds a TenantRepository over db.
func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// PreferredLanguages returns tenantID's ordered language preference list,
// used to derive the RAG answer's language instruction.
func (r *TenantRepository) PreferredLanguages(ctx context.Context, tenantID uint64) ([]string, error) {
	var tenant types.Tenant
	if err := r.db.WithContext(ctx).Select("preferred_languages").First(&tenant, "id = ?", tenantID).Error; err != nil {
		return nil, err
	}
	var langs []string
	if len(tenant.PreferredLanguages) > 0 {
		_ = json.Unmarshal(tenant.PreferredLanguages, &langs)
	}
	return langs, nil
}

// GetByID loads a Tenant row, used by CRM/summarizer code that needs the
// tenant's display name.
func (r *TenantRepository) GetByID(ctx context.Context, tenantID uint64) (*types.Tenant, error) {
	var tenant types.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}
