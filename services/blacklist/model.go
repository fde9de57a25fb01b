package blacklist

import "time"

// Entry marks a user as barred from bidding in a tenant, typically after a
// payment default.
type Entry struct {
	ID        string    `gorm:"column:id;primaryKey"`
	TenantID  string    `gorm:"column:tenant_id;index:idx_blacklist_tenant_user"`
	UserID    string    `gorm:"column:user_id;index:idx_blacklist_tenant_user"`
	Reason    string    `gorm:"column:reason"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Entry) TableName() string {
	return "blacklist_entries"
}
