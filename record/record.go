// Package record defines the persisted record types of the store.
//
// Every record has an immutable id assigned on first save, server-assigned
// timestamps, a set of indexed fields stored as columns, and a document
// holding everything else.
package record

import (
	"regexp"
	"time"

	"github.com/google/uuid"

	"constellation/document"
)

// Entity is the contract the repository layer relies on.
type Entity interface {
	GetID() string
	SetID(id string)
	IsNew() bool

	GetName() string
	GetSlug() string
	SetSlug(slug string)
	// GenerateSlug derives the slug from the name when it is blank.
	GenerateSlug()

	GetCreatedAt() time.Time
	SetCreatedAt(t time.Time)
	GetUpdatedAt() time.Time
	SetUpdatedAt(t time.Time)

	Data() *document.Map
	SetData(m *document.Map)
}

// Base holds the fields shared by all record types.
type Base struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Document  *document.Map
}

func (b *Base) GetID() string { return b.ID }

func (b *Base) SetID(id string) { b.ID = id }

// IsNew reports whether the record has not been persisted yet.
func (b *Base) IsNew() bool { return b.ID == "" }

func (b *Base) GetCreatedAt() time.Time { return b.CreatedAt }

func (b *Base) SetCreatedAt(t time.Time) { b.CreatedAt = t }

func (b *Base) GetUpdatedAt() time.Time { return b.UpdatedAt }

func (b *Base) SetUpdatedAt(t time.Time) { b.UpdatedAt = t }

// Data returns the document, allocating it on first use.
func (b *Base) Data() *document.Map {
	if b.Document == nil {
		b.Document = document.NewMap()
	}
	return b.Document
}

func (b *Base) SetData(m *document.Map) {
	if m == nil {
		m = document.NewMap()
	}
	b.Document = m
}

// DataValue returns the document value stored under key.
func (b *Base) DataValue(key string) (document.Value, bool) {
	return b.Document.Get(key)
}

// SetDataValue stores v under key in the document.
func (b *Base) SetDataValue(key string, v document.Value) {
	b.Data().Set(key, v)
}

// RemoveDataValue deletes key from the document.
func (b *Base) RemoveDataValue(key string) {
	b.Document.Delete(key)
}

func (b Base) clone() Base {
	out := b
	if b.Document != nil {
		out.Document = b.Document.Clone()
	}
	return out
}

var idPattern = regexp.MustCompile(`^[a-f0-9-]+$`)

// IDLength is the length of a generated id.
const IDLength = 36

// NewID returns a fresh random (version 4) UUID string.
func NewID() string {
	return uuid.NewString()
}

// LooksLikeID reports whether ref has the shape of a generated id: 36
// characters of lowercase hex digits and dashes. Anything else is treated as
// a name by tag resolution.
func LooksLikeID(ref string) bool {
	return len(ref) == IDLength && idPattern.MatchString(ref)
}
