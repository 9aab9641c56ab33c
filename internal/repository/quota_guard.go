package repository

import (
	"context"

	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
	"gorm.io/gorm"
)

// quotaGuard implements interfaces.QuotaGuard as a single conditional
// UPDATE: the WHERE clause makes the read-and-increment atomic and
// linearizable per row without an application-level lock.
type quotaGuard struct {
	db *gorm.DB
}

var _ interfaces.QuotaGuard = (*quotaGuard)(nil)

// NewQuotaGuard builds a QuotaGuard over the tenants table, which carries
// the per-tenant usage_count/quota_limit pair.
func NewQuotaGuard(db *gorm.DB) interfaces.QuotaGuard {
	return &quotaGuard{db: db}
}

// Admit atomically increments tenantID's usage counter if it is still
// under quota. The counter lives on the Tenant row itself; the
// usage_count/quota_limit columns of bot_sessions rows are not updated by
// an admit.
func (g *quotaGuard) Admit(ctx context.Context, tenantID uint64) (ok bool, exceeded bool, err error) {
	res := g.db.WithContext(ctx).Model(&types.Tenant{}).
		Where("id = ? AND usage_count < quota_limit", tenantID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return false, false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, true, nil
	}
	return true, false, nil
}
