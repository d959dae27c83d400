package models

import (
	"strings"
	"time"
)

// LinkPrecedence marks a contact as the canonical record of its identity or as
// one merged into it.
type LinkPrecedence string

const (
	LinkPrecedencePrimary   LinkPrecedence = "primary"
	LinkPrecedenceSecondary LinkPrecedence = "secondary"
)

// Valid reports whether p is one of the known precedences.
func (p LinkPrecedence) Valid() bool {
	return p == LinkPrecedencePrimary || p == LinkPrecedenceSecondary
}

// Contact represents a customer contact in the database
type Contact struct {
	ID             int64          `json:"id"`
	PhoneNumber    *string        `json:"phoneNumber,omitempty"`
	Email          *string        `json:"email,omitempty"`
	LinkedID       *int64         `json:"linkedId,omitempty"`
	LinkPrecedence LinkPrecedence `json:"linkPrecedence"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// IsPrimary reports whether the contact is the canonical record of its identity.
func (c Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

// OlderThan orders contacts by creation time, lowest id first on equal timestamps.
func (c Contact) OlderThan(other Contact) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

// Fragment is the normalized email and/or phone number carried by one request.
// A nil field means the identifier was not supplied.
type Fragment struct {
	Email       *string
	PhoneNumber *string
}

// NewFragment normalizes raw identifiers: empty values are dropped and the email
// is lowercased. Phone numbers are kept verbatim.
func NewFragment(email, phoneNumber *string) Fragment {
	var f Fragment
	if email != nil && *email != "" {
		e := strings.ToLower(*email)
		f.Email = &e
	}
	if phoneNumber != nil && *phoneNumber != "" {
		p := *phoneNumber
		f.PhoneNumber = &p
	}
	return f
}

// Empty reports whether neither identifier is present.
func (f Fragment) Empty() bool {
	return f.Email == nil && f.PhoneNumber == nil
}

// ConsolidatedView is the merged picture of one identity.
type ConsolidatedView struct {
	PrimaryContactID    int64
	Emails              []string
	PhoneNumbers        []string
	SecondaryContactIDs []int64
}

// Response converts the view into its wire representation. Lists are never nil
// so they encode as [] rather than null.
func (v ConsolidatedView) Response() *IdentifyResponse {
	resp := ContactResponse{
		PrimaryContactID:    v.PrimaryContactID,
		Emails:              v.Emails,
		PhoneNumbers:        v.PhoneNumbers,
		SecondaryContactIDs: v.SecondaryContactIDs,
	}
	if resp.Emails == nil {
		resp.Emails = []string{}
	}
	if resp.PhoneNumbers == nil {
		resp.PhoneNumbers = []string{}
	}
	if resp.SecondaryContactIDs == nil {
		resp.SecondaryContactIDs = []int64{}
	}
	return &IdentifyResponse{Contact: resp}
}
