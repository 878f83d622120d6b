package models

import "time"

// Product represents a digital asset (theme, template, funnel) in the catalog.
// Monetary amounts are integer minor units.
type Product struct {
	ID         int64     `db:"id" json:"id"`
	VendorID   int64     `db:"vendor_id" json:"vendor_id"`
	Name       string    `db:"name" json:"name"`
	Price      int64     `db:"price" json:"price"`
	SalePrice  *int64    `db:"sale_price" json:"sale_price,omitempty"`
	Status     string    `db:"status" json:"status"`
	FileKey    string    `db:"file_key" json:"-"`
	SalesCount int       `db:"sales_count" json:"sales_count"`
	Downloads  int       `db:"downloads" json:"downloads"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// EffectivePrice returns the sale price when set, else the list price.
func (p *Product) EffectivePrice() int64 {
	if p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.Price
}

// VendorProfile holds the seller-side aggregates mutated on each sale.
type VendorProfile struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	DisplayName   string    `db:"display_name" json:"display_name"`
	TotalSales    int       `db:"total_sales" json:"total_sales"`
	TotalRevenue  int64     `db:"total_revenue" json:"total_revenue"`
	PayoutAccount string    `db:"payout_account" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// User is the minimal credential collaborator: opaque token to identity.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	APIToken  string    `db:"api_token" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order represents a buyer's purchase attempt. The order number is the
// correlation key shared with external payment processors.
type Order struct {
	ID          int64      `db:"id" json:"id"`
	OrderNumber string     `db:"order_number" json:"order_number"`
	UserID      int64      `db:"user_id" json:"user_id"`
	Subtotal    int64      `db:"subtotal" json:"subtotal"`
	PlatformFee int64      `db:"platform_fee" json:"platform_fee"`
	Total       int64      `db:"total" json:"total"`
	Status      string     `db:"status" json:"status"`
	Provider    string     `db:"provider" json:"provider,omitempty"`
	ExternalRef string     `db:"external_ref" json:"external_ref,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	PaidAt      *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// OrderItem is one product line within an order. Prices and the revenue
// split are snapshotted at creation time; VendorShare + PlatformShare
// always equals UnitPrice.
type OrderItem struct {
	ID            int64 `db:"id" json:"id"`
	OrderID       int64 `db:"order_id" json:"order_id"`
	ProductID     int64 `db:"product_id" json:"product_id"`
	VendorID      int64 `db:"vendor_id" json:"vendor_id"`
	UnitPrice     int64 `db:"unit_price" json:"unit_price"`
	VendorShare   int64 `db:"vendor_share" json:"vendor_share"`
	PlatformShare int64 `db:"platform_share" json:"platform_share"`
	DownloadCount int   `db:"download_count" json:"download_count"`
	MaxDownloads  int   `db:"max_downloads" json:"max_downloads"`
}

// Order statuses. Transitions only move forward:
// PENDING -> {PAID, CANCELLED}, PAID -> {COMPLETED, REFUNDED}.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusRefunded  = "REFUNDED"
)

// Product statuses
const (
	ProductStatusDraft    = "DRAFT"
	ProductStatusPending  = "PENDING_REVIEW"
	ProductStatusApproved = "APPROVED"
	ProductStatusRejected = "REJECTED"
)

// User roles
const (
	RoleBuyer  = "BUYER"
	RoleVendor = "VENDOR"
	RoleAdmin  = "ADMIN"
)

// Downloadable reports whether the order grants download entitlements.
func (o *Order) Downloadable() bool {
	return o.Status == OrderStatusPaid || o.Status == OrderStatusCompleted
}
