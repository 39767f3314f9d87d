package models

import "time"

// Entity type codes recognized by the directory.
const (
	EntityTypeIndividual   = 1
	EntityTypeOrganization = 2
)

// RecognizedEntityTypes is the fixed set of entity type codes accepted by
// the typed duplicate-name endpoints.
var RecognizedEntityTypes = map[int]string{
	EntityTypeIndividual:   "individual",
	EntityTypeOrganization: "organization",
}

// Table names used in deletion plans and audit records.
const (
	TableEntities         = "entities"
	TablePeople           = "people"
	TableAddresses        = "addresses"
	TableEntityProperties = "entity_properties"
)

// Entity is the canonical organizational/individual record. It owns People,
// Addresses and EntityProperties. A merge is the only operation that soft
// deletes an Entity; once deleted it is immutable and excluded from grouping.
type Entity struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	TradeName  *string    `json:"trade_name,omitempty" db:"trade_name"`
	EntityType int        `json:"entity_type" db:"entity_type"`
	IsDeleted  bool       `json:"is_deleted" db:"is_deleted"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// Person is exclusively owned by one Entity; re-parented only via merge.
type Person struct {
	ID          string     `json:"id" db:"id"`
	EntityID    string     `json:"entity_id" db:"entity_id"`
	FirstName   string     `json:"first_name" db:"first_name"`
	LastName    string     `json:"last_name" db:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Address is a structured location owned by one Entity.
type Address struct {
	ID         string     `json:"id" db:"id"`
	EntityID   string     `json:"entity_id" db:"entity_id"`
	Street     string     `json:"street" db:"street"`
	Street2    *string    `json:"street2,omitempty" db:"street2"`
	City       string     `json:"city" db:"city"`
	State      string     `json:"state" db:"state"`
	PostalCode string     `json:"postal_code" db:"postal_code"`
	Country    string     `json:"country" db:"country"`
	IsPrimary  bool       `json:"is_primary" db:"is_primary"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// EntityProperty is a typed key/value attached to an Entity. Property rows
// are hard-deleted, never soft-deleted.
type EntityProperty struct {
	ID             string    `json:"id" db:"id"`
	EntityID       string    `json:"entity_id" db:"entity_id"`
	PropertyTypeID string    `json:"property_type_id" db:"property_type_id"`
	Value          string    `json:"value" db:"value"`
	IsPrimary      bool      `json:"is_primary" db:"is_primary"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// AuditLog is one append-only audit entry.
type AuditLog struct {
	ID         string    `json:"id" db:"id"`
	Action     string    `json:"action" db:"action"`
	EntityType string    `json:"entity_type" db:"entity_type"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	OldValue   string    `json:"old_value" db:"old_value"`
	NewValue   string    `json:"new_value" db:"new_value"`
	Note       string    `json:"note" db:"note"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ActionEntityMerge is the audit action recorded for every applied merge.
const ActionEntityMerge = "ENTITY_MERGE"
