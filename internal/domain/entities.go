package domain

import "time"

// Entity type names used in outbox and change-log entries.
const (
	EntityProduct  = "product"
	EntityCategory = "category"
	EntityUser     = "user"
)

// Syncable is implemented by local entities that travel through the outbox
// and are replayed from the change log.
type Syncable interface {
	// SyncEntityType is the entity_type written to the outbox.
	SyncEntityType() string
	// SyncID returns the primary key.
	SyncID() int64
	// SetSyncID overrides the primary key with the id carried by a change.
	SetSyncID(id int64)
}

// Category groups products in the catalog.
type Category struct {
	ID          int64     `json:"id"          gorm:"primaryKey;autoIncrement:false"`
	Name        string    `json:"name"        gorm:"type:varchar(255);not null"`
	Description string    `json:"description" gorm:"type:text;not null;default:''"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string { return "categories" }

func (c *Category) SyncEntityType() string { return EntityCategory }
func (c *Category) SyncID() int64          { return c.ID }
func (c *Category) SetSyncID(id int64)     { c.ID = id }

// Product is a sellable item with its current stock level. Prices are stored
// in minor currency units.
type Product struct {
	ID         int64     `json:"id"          gorm:"primaryKey;autoIncrement:false"`
	CategoryID *int64    `json:"category_id" gorm:"index"`
	SKU        string    `json:"sku"         gorm:"type:varchar(64);not null;default:''"`
	Barcode    string    `json:"barcode"     gorm:"type:varchar(64);not null;default:''"`
	Name       string    `json:"name"        gorm:"type:varchar(255);not null"`
	PriceCents int64     `json:"price_cents" gorm:"not null;default:0"`
	Stock      int64     `json:"stock"       gorm:"not null;default:0"`
	Active     bool      `json:"active"      gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

func (p *Product) SyncEntityType() string { return EntityProduct }
func (p *Product) SyncID() int64          { return p.ID }
func (p *Product) SetSyncID(id int64)     { p.ID = id }

// User is a terminal operator account. Credentials are not synced.
type User struct {
	ID        int64     `json:"id"        gorm:"primaryKey;autoIncrement:false"`
	Username  string    `json:"username"  gorm:"type:varchar(64);not null"`
	FullName  string    `json:"full_name" gorm:"type:varchar(255);not null;default:''"`
	Role      string    `json:"role"      gorm:"type:varchar(32);not null;default:'cashier'"`
	Active    bool      `json:"active"    gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

func (u *User) SyncEntityType() string { return EntityUser }
func (u *User) SyncID() int64          { return u.ID }
func (u *User) SetSyncID(id int64)     { u.ID = id }
