package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// ULID identifies catalog rows. It is stored as its 26-character string
// form so rows sort by creation time under a plain ORDER BY id.
type ULID ulid.ULID

// NewULID returns a fresh identifier. Safe for concurrent use.
func NewULID() ULID {
	return ULID(ulid.Make())
}

// ParseULID converts the canonical 26-character form back into a ULID.
func ParseULID(s string) (ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ULID{}, fmt.Errorf("invalid ULID %q: %w", s, err)
	}
	return ULID(id), nil
}

// MustParseULID is ParseULID for fixtures and tests.
func MustParseULID(s string) ULID {
	id, err := ParseULID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (u ULID) String() string {
	return ulid.ULID(u).String()
}

// IsZero reports whether u is the zero identifier.
func (u ULID) IsZero() bool {
	return u == ULID{}
}

// MarshalText implements encoding.TextMarshaler, which also covers JSON.
func (u ULID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields
// the zero identifier.
func (u *ULID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*u = ULID{}
		return nil
	}
	id, err := ParseULID(string(text))
	if err != nil {
		return err
	}
	*u = id
	return nil
}

// Value implements driver.Valuer. Zero identifiers store as NULL.
func (u ULID) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.String(), nil
}

// Scan implements sql.Scanner for string and byte-slice columns.
func (u *ULID) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*u = ULID{}
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into ULID", src)
	}
	return u.UnmarshalText([]byte(s))
}

// GormDataType tells GORM to create a fixed-width column matching the
// canonical form.
func (ULID) GormDataType() string {
	return "char(26)"
}
