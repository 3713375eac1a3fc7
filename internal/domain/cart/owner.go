// internal/domain/cart/owner.go
package cart

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/your-org/storefront-backend/internal/pkg/apperror"
)

// OwnerKind tells whether a cart belongs to a user or to a guest session
type OwnerKind string

const (
	OwnerKindUser  OwnerKind = "user"
	OwnerKindGuest OwnerKind = "guest"
)

// Owner identifies the holder of a cart: exactly one of a user id or a guest
// token. It is stored in a single column as "user:<id>" or "guest:<token>".
type Owner struct {
	kind   OwnerKind
	userID uint
	token  string
}

// UserOwner returns the owner for a registered user
func UserOwner(userID uint) Owner {
	if userID == 0 {
		return Owner{}
	}
	return Owner{kind: OwnerKindUser, userID: userID}
}

// GuestOwner returns the owner for a guest session token
func GuestOwner(token string) Owner {
	token = strings.TrimSpace(token)
	if token == "" {
		return Owner{}
	}
	return Owner{kind: OwnerKindGuest, token: token}
}

// ParseOwner parses the stored form of an owner
func ParseOwner(s string) (Owner, error) {
	kind, value, ok := strings.Cut(s, ":")
	if !ok || value == "" {
		return Owner{}, apperror.ErrInvalidOwner.With("owner", s)
	}

	switch OwnerKind(kind) {
	case OwnerKindUser:
		id, err := strconv.ParseUint(value, 10, 64)
		if err != nil || id == 0 {
			return Owner{}, apperror.ErrInvalidOwner.With("owner", s)
		}
		return UserOwner(uint(id)), nil
	case OwnerKindGuest:
		return GuestOwner(value), nil
	default:
		return Owner{}, apperror.ErrInvalidOwner.With("owner", s)
	}
}

// Kind returns the owner kind, empty for the zero owner
func (o Owner) Kind() OwnerKind { return o.kind }

// IsZero reports whether the owner is unset
func (o Owner) IsZero() bool { return o.kind == "" }

// IsUser reports whether a registered user owns the cart
func (o Owner) IsUser() bool { return o.kind == OwnerKindUser }

// IsGuest reports whether a guest session owns the cart
func (o Owner) IsGuest() bool { return o.kind == OwnerKindGuest }

// UserID returns the user id when the owner is a user
func (o Owner) UserID() (uint, bool) {
	return o.userID, o.IsUser()
}

// GuestToken returns the session token when the owner is a guest
func (o Owner) GuestToken() (string, bool) {
	return o.token, o.IsGuest()
}

// UserIDPtr returns the user id as a nullable value
func (o Owner) UserIDPtr() *uint {
	if !o.IsUser() {
		return nil
	}
	id := o.userID
	return &id
}

func (o Owner) String() string {
	switch o.kind {
	case OwnerKindUser:
		return fmt.Sprintf("user:%d", o.userID)
	case OwnerKindGuest:
		return "guest:" + o.token
	default:
		return ""
	}
}

// Value implements driver.Valuer. The zero owner cannot be stored.
func (o Owner) Value() (driver.Value, error) {
	if o.IsZero() {
		return nil, apperror.ErrInvalidOwner
	}
	return o.String(), nil
}

// Scan implements sql.Scanner
func (o *Owner) Scan(value any) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		*o = Owner{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into cart owner", value)
	}

	parsed, err := ParseOwner(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// GormDataType stores the owner as a string column
func (Owner) GormDataType() string {
	return "string"
}

// MarshalJSON exposes the owner kind and user id. Guest tokens are
// credentials and never leave the server in a response body.
func (o Owner) MarshalJSON() ([]byte, error) {
	out := struct {
		Type   OwnerKind `json:"type"`
		UserID *uint     `json:"user_id,omitempty"`
	}{Type: o.kind, UserID: o.UserIDPtr()}
	return json.Marshal(out)
}
