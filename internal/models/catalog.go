package models

import "time"

// Operator roles.
const (
	RoleOperator   = "operator"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

// Work order status values.
const (
	WorkOrderOpen       = "open"
	WorkOrderInProgress = "in_progress"
	WorkOrderCompleted  = "completed"
)

// Operator is a shop-floor worker who runs activities.
type Operator struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Badge     string    `gorm:"size:32;not null;uniqueIndex" json:"badge"`
	Role      string    `gorm:"size:16;not null;default:operator" json:"role"`
	PINHash   string    `gorm:"size:72" json:"-"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Process is a production step (sewing, printing, embroidery...).
type Process struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:128;not null;uniqueIndex" json:"name"`
	Sector    string    `gorm:"size:64;index" json:"sector"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkOrder (OF) is a production order for a product and target quantity.
type WorkOrder struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Code        string    `gorm:"size:32;not null;uniqueIndex" json:"code"`
	Reference   string    `gorm:"size:64;index" json:"reference"`
	Description string    `gorm:"type:text" json:"description"`
	Quantity    int       `gorm:"not null;default:0" json:"quantity"`
	Status      string    `gorm:"size:16;not null;default:open;index" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
