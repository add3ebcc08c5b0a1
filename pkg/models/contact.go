package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

type LinkPrecedence string

const (
	LinkPrecedencePrimary   LinkPrecedence = "primary"
	LinkPrecedenceSecondary LinkPrecedence = "secondary"
)

// Contact is a single observed (email, phone number) fact. Secondaries point
// at their cluster's primary through LinkedID.
type Contact struct {
	ID             int64          `json:"id" db:"id"`
	PhoneNumber    *string        `json:"phoneNumber" db:"phone_number"`
	Email          *string        `json:"email" db:"email"`
	LinkedID       *int64         `json:"linkedId" db:"linked_id"`
	LinkPrecedence LinkPrecedence `json:"linkPrecedence" db:"link_precedence"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty" db:"deleted_at"`
}

func (c *Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

// Before orders contacts by creation time, then id.
func (c *Contact) Before(other *Contact) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

// HasEmail reports whether the contact carries exactly this email.
func (c *Contact) HasEmail(email string) bool {
	return c.Email != nil && *c.Email == email
}

func (c *Contact) HasPhoneNumber(phone string) bool {
	return c.PhoneNumber != nil && *c.PhoneNumber == phone
}

// CreateContactRequest is the write model for a new contact row.
type CreateContactRequest struct {
	Email          *string
	PhoneNumber    *string
	LinkedID       *int64
	LinkPrecedence LinkPrecedence
}

// IdentifyRequest is the body of POST /identify. Both fields accept a JSON
// string, a JSON number or null.
type IdentifyRequest struct {
	Email       *string `json:"email" validate:"omitempty,max=255"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,max=255"`
}

func (r *IdentifyRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Email       json.RawMessage `json:"email"`
		PhoneNumber json.RawMessage `json:"phoneNumber"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	email, err := scalarText("email", raw.Email)
	if err != nil {
		return err
	}
	phone, err := scalarText("phoneNumber", raw.PhoneNumber)
	if err != nil {
		return err
	}

	r.Email = email
	r.PhoneNumber = phone
	return nil
}

// Attributes returns the request values with empty strings treated as absent.
func (r IdentifyRequest) Attributes() (email, phone *string) {
	return presentOrNil(r.Email), presentOrNil(r.PhoneNumber)
}

func scalarText(field string, raw json.RawMessage) (*string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		return &s, nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		s, err := numberText(n)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("%s must be a string or a number", field)
	}
}

// numberText renders a JSON number by value: integers keep every digit,
// anything else ("1.5e3", "123.0") becomes its shortest decimal form.
func numberText(n json.Number) (string, error) {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := n.Float64()
	if err != nil {
		return "", err
	}
	if math.Abs(f) >= 1e21 {
		return strconv.FormatFloat(f, 'e', -1, 64), nil
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

func presentOrNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// ConsolidatedContact is the ordered summary of a cluster.
type ConsolidatedContact struct {
	// the misspelling is part of the published contract
	PrimaryContactID    int64    `json:"primaryContatctId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

type IdentifyResponse struct {
	Contact ConsolidatedContact `json:"contact"`
}
