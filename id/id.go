// Package id defines TypeID-based identity types for all dealflow entities.
//
// Every entity uses a single ID struct with a prefix that identifies the
// entity type. IDs are K-sortable (UUIDv7-based), globally unique, and
// URL-safe in the format "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all dealflow entity types.
const (
	PrefixRun        Prefix = "inst"
	PrefixCheckpoint Prefix = "step"
	PrefixEvent      Prefix = "evt"
	PrefixNDA        Prefix = "nda"
	PrefixGrant      Prefix = "grant"
	PrefixInvestment Prefix = "inv"
	PrefixProduction Prefix = "prod"
	PrefixActivation Prefix = "act"
)

// ID is the primary identifier type for all dealflow entities.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g. "inst_01h2xcejqtf2nbrexx3vqjhp41").
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and checks that its prefix is expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// ──────────────────────────────────────────────────
// Type aliases
// ──────────────────────────────────────────────────

// RunID identifies a workflow instance (prefix: "inst").
type RunID = ID

// CheckpointID identifies a step record (prefix: "step").
type CheckpointID = ID

// EventID identifies a delivered event (prefix: "evt").
type EventID = ID

// NDAID identifies an NDA (prefix: "nda").
type NDAID = ID

// GrantID identifies a pitch access grant (prefix: "grant").
type GrantID = ID

// InvestmentID identifies an investment deal (prefix: "inv").
type InvestmentID = ID

// ProductionID identifies a production deal (prefix: "prod").
type ProductionID = ID

// ActivationID identifies a production activation record (prefix: "act").
type ActivationID = ID

// ──────────────────────────────────────────────────
// Constructors and parsers
// ──────────────────────────────────────────────────

func NewRunID() ID        { return New(PrefixRun) }
func NewCheckpointID() ID { return New(PrefixCheckpoint) }
func NewEventID() ID      { return New(PrefixEvent) }
func NewNDAID() ID        { return New(PrefixNDA) }
func NewGrantID() ID      { return New(PrefixGrant) }
func NewInvestmentID() ID { return New(PrefixInvestment) }
func NewProductionID() ID { return New(PrefixProduction) }
func NewActivationID() ID { return New(PrefixActivation) }

// ParseRunID parses a string and validates the "inst" prefix.
func ParseRunID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRun) }

// ParseNDAID parses a string and validates the "nda" prefix.
func ParseNDAID(s string) (ID, error) { return ParseWithPrefix(s, PrefixNDA) }

// ParseInvestmentID parses a string and validates the "inv" prefix.
func ParseInvestmentID(s string) (ID, error) { return ParseWithPrefix(s, PrefixInvestment) }

// ParseProductionID parses a string and validates the "prod" prefix.
func ParseProductionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixProduction) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string, or "" for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. The Nil ID is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
