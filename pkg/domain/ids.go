package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "landreg/pkg/domain-errors"
)

// Typed identifiers keep application, parcel, document and conflict IDs from
// being mixed up at call sites. All are UUIDs underneath.
type (
	ApplicationID uuid.UUID
	ParcelID      uuid.UUID
	DocumentID    uuid.UUID
	ConflictID    uuid.UUID
	UserID        uuid.UUID
)

func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id ApplicationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ParcelID) String() string      { return uuid.UUID(id).String() }
func (id ParcelID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) String() string    { return uuid.UUID(id).String() }
func (id DocumentID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ConflictID) String() string    { return uuid.UUID(id).String() }
func (id ConflictID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id UserID) IsNil() bool           { return uuid.UUID(id) == uuid.Nil }

// NewApplicationID and friends mint random identifiers.
func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }
func NewParcelID() ParcelID           { return ParcelID(uuid.New()) }
func NewDocumentID() DocumentID       { return DocumentID(uuid.New()) }
func NewConflictID() ConflictID       { return ConflictID(uuid.New()) }

// maxIDLength bounds input before it reaches the UUID parser. The canonical
// form is 36 characters; braces and urn prefixes are not accepted.
const maxIDLength = 36

func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application ID")
	return ApplicationID(u), err
}

func ParseParcelID(s string) (ParcelID, error) {
	u, err := parseUUID(s, "parcel ID")
	return ParcelID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document ID")
	return DocumentID(u), err
}

func ParseConflictID(s string) (ConflictID, error) {
	u, err := parseUUID(s, "conflict ID")
	return ConflictID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

// parseUUID enforces the trust-boundary invariant: IDs are non-empty, canonical,
// non-nil UUIDs.
func parseUUID(s, label string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	if len(s) != maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" must not be nil")
	}
	return u, nil
}
