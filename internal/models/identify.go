package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidPhoneNumber is returned when phoneNumber is neither a string nor a number.
var ErrInvalidPhoneNumber = errors.New("phoneNumber must be a string or a number")

// IdentifyRequest represents the incoming request body
type IdentifyRequest struct {
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
}

// UnmarshalJSON accepts phoneNumber either as a string or as a JSON number,
// keeping the number's literal text.
func (r *IdentifyRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Email       *string         `json:"email"`
		PhoneNumber json.RawMessage `json:"phoneNumber"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Email = raw.Email
	r.PhoneNumber = nil

	phone := bytes.TrimSpace(raw.PhoneNumber)
	if len(phone) == 0 || bytes.Equal(phone, []byte("null")) {
		return nil
	}

	switch phone[0] {
	case '"':
		var s string
		if err := json.Unmarshal(phone, &s); err != nil {
			return fmt.Errorf("phoneNumber: %w", err)
		}
		r.PhoneNumber = &s
	default:
		var n json.Number
		if err := json.Unmarshal(phone, &n); err != nil {
			return ErrInvalidPhoneNumber
		}
		s := n.String()
		r.PhoneNumber = &s
	}
	return nil
}

// Fragment returns the normalized identifiers of the request.
func (r IdentifyRequest) Fragment() Fragment {
	return NewFragment(r.Email, r.PhoneNumber)
}

// ContactResponse represents the contact data in the response
type ContactResponse struct {
	PrimaryContactID    int64    `json:"primaryContatctId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// IdentifyResponse represents the response body
type IdentifyResponse struct {
	Contact ContactResponse `json:"contact"`
}
