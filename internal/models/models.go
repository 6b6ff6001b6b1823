package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, matching what the storefront sends.
	decimal.MarshalJSONWithoutQuotes = true
}

// Collection names in the document store
const (
	CollectionUsers       = "users"
	CollectionProducts    = "products"
	CollectionCategories  = "categories"
	CollectionBrands      = "brands"
	CollectionTypes       = "types"
	CollectionOrders      = "orders"
	CollectionCarts       = "carts"
	CollectionImages      = "images"
	CollectionCredentials = "credentials"
	// CollectionStockLedger tracks which order lines have been taken out of
	// stock, keyed by order id.
	CollectionStockLedger   = "stock_ledger"
	CollectionNotifications = "notifications"
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusShipped   = "shipped"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// ValidOrderStatus reports whether s is one of the known order statuses.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusShipped, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// ValidRole reports whether r is an assignable role.
func ValidRole(r string) bool {
	return r == RoleUser || r == RoleAdmin
}

// Product is a catalog entry with a per-size stock map.
type Product struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
	Discount      decimal.Decimal  `json:"discount"`
	Category      string           `json:"category"`
	Brand         string           `json:"brand"`
	Type          string           `json:"type"`
	Model         string           `json:"model,omitempty"`
	Stock         map[string]int   `json:"stock"`
	Sizes         []string         `json:"sizes"`
	Images        []string         `json:"images"`
	Image         string           `json:"image,omitempty"`
	IsActive      *bool            `json:"isActive,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     *time.Time       `json:"updatedAt,omitempty"`
}

// Active treats a missing isActive flag as true.
func (p *Product) Active() bool {
	return p.IsActive == nil || *p.IsActive
}

// MissingStockSizes lists sizes that have no entry in the stock map.
func (p *Product) MissingStockSizes() []string {
	var missing []string
	for _, size := range p.Sizes {
		if _, ok := p.Stock[size]; !ok {
			missing = append(missing, size)
		}
	}
	return missing
}

// Address is embedded in the owning user's document.
type Address struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	FullAddress string     `json:"fullAddress"`
	City        string     `json:"city"`
	District    string     `json:"district"`
	PostalCode  string     `json:"postalCode"`
	IsDefault   bool       `json:"isDefault"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// User is keyed by the identity provider subject.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	Role        string     `json:"role"`
	Addresses   []Address  `json:"addresses,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// Name returns the display name, falling back to the email.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// CartItem is one line of a cart. Size is optional.
type CartItem struct {
	ProductID string `json:"productId"`
	Size      string `json:"size,omitempty"`
	Quantity  int    `json:"quantity"`
}

// Cart is keyed by user id; one per user.
type Cart struct {
	UserID    string     `json:"userId"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// CartLine is a cart item joined with its product. Product is nil when the
// product no longer exists.
type CartLine struct {
	CartItem
	Product *Product `json:"product"`
}

// OrderItem snapshots the product at checkout time.
type OrderItem struct {
	ProductID string   `json:"productId"`
	Size      string   `json:"size,omitempty"`
	Quantity  int      `json:"quantity"`
	Product   *Product `json:"product,omitempty"`
}

// Order is an immutable copy of a cart at checkout.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Items           []OrderItem     `json:"items"`
	Total           decimal.Decimal `json:"total"`
	ShippingAddress *Address        `json:"shippingAddress,omitempty"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       *time.Time      `json:"updatedAt,omitempty"`
}

// ItemCount sums the quantities of all order lines.
func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parentId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Brand struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Logo string `json:"logo,omitempty"`
}

type ProductType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Image is upload metadata; the bytes live in a blob store.
type Image struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	Backend      string    `json:"backend"`
	StorageURL   string    `json:"storageUrl,omitempty"`
	LocalURL     string    `json:"localUrl,omitempty"`
	FileName     string    `json:"fileName"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Stock statuses
const (
	StockOutOfStock = "out_of_stock"
	StockLow        = "low_stock"
	StockSufficient = "sufficient"
)

// Alert severities as shown on the dashboard
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// StockAlert flags one product size that is low or out of stock.
type StockAlert struct {
	ProductID string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	Status    string          `json:"type"`
	Severity  string          `json:"severity"`
}

// StockSummary aggregates a product's stock map.
type StockSummary struct {
	ProductID  string `json:"productId"`
	TotalUnits int    `json:"totalUnits"`
	OutOfStock int    `json:"outOfStock"`
	Low        int    `json:"lowStock"`
	Sufficient int    `json:"sufficient"`
}

type DashboardStats struct {
	TotalSales     decimal.Decimal `json:"totalSales"`
	TotalOrders    int             `json:"totalOrders"`
	TotalProducts  int             `json:"totalProducts"`
	TotalCustomers int             `json:"totalCustomers"`
}

type AdminOrderView struct {
	ID           string          `json:"id"`
	CustomerName string          `json:"customerName"`
	Total        decimal.Decimal `json:"total"`
	Status       string          `json:"status"`
	Date         time.Time       `json:"date"`
	ItemCount    int             `json:"itemCount"`
}

type AdminUserView struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

type AdminAddressView struct {
	Address
	UserID          string `json:"userId"`
	UserEmail       string `json:"userEmail"`
	UserDisplayName string `json:"userDisplayName"`
}

// Notification types and priorities
const (
	NotificationOrder  = "order"
	NotificationStock  = "stock"
	NotificationSystem = "system"

	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Notification is an entry in the admin notification feed.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  string    `json:"priority"`
	ProductID string    `json:"productId,omitempty"`
	OrderID   string    `json:"orderId,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}
