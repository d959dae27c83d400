package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"identity-reconciliation/internal/models"
	"identity-reconciliation/internal/repository"
)

// Consolidation is the outcome of one Consolidate call.
type Consolidation struct {
	View    models.ConsolidatedView
	Primary models.Contact
	// Created is the contact inserted by the call, if any.
	Created *models.Contact
	// Promoted is set when the component had no primary and its oldest member
	// was promoted.
	Promoted bool
	// Demoted are the former primaries turned into secondaries of Primary.
	Demoted []models.Contact
	// Relinked are secondaries re-pointed at Primary.
	Relinked []models.Contact
}

// Consolidator decides what a fragment adds to its component and keeps a
// single primary per component.
type Consolidator struct {
	now func() time.Time
}

// NewConsolidator returns a Consolidator stamping writes with clock.
func NewConsolidator(clock func() time.Time) Consolidator {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return Consolidator{now: clock}
}

// Consolidate creates a primary for an empty component; otherwise it records
// unseen identifiers as one new secondary of the component's oldest primary
// and demotes every other primary.
func (c Consolidator) Consolidate(ctx context.Context, repo repository.ContactRepository, f models.Fragment, component []models.Contact) (Consolidation, error) {
	now := c.now()

	if len(component) == 0 {
		return c.createPrimary(ctx, repo, f, now)
	}

	members := slices.Clone(component)
	var result Consolidation

	primaryIdx := oldestIndex(members, models.Contact.IsPrimary)
	if primaryIdx < 0 {
		// No primary left in the component: promote its oldest member.
		primaryIdx = oldestIndex(members, func(models.Contact) bool { return true })
		members[primaryIdx].LinkPrecedence = models.LinkPrecedencePrimary
		members[primaryIdx].LinkedID = nil
		members[primaryIdx].UpdatedAt = now
		result.Promoted = true
	}
	primary := members[primaryIdx]
	result.Primary = primary

	slices.SortStableFunc(members, func(a, b models.Contact) int {
		if a.IsPrimary() != b.IsPrimary() {
			if a.IsPrimary() {
				return -1
			}
			return 1
		}
		if a.OlderThan(b) {
			return -1
		}
		if b.OlderThan(a) {
			return 1
		}
		return 0
	})

	view := models.ConsolidatedView{PrimaryContactID: primary.ID}
	knownEmails := make(map[string]struct{})
	knownPhones := make(map[string]struct{})
	for _, m := range members {
		if m.Email != nil {
			if _, ok := knownEmails[*m.Email]; !ok {
				knownEmails[*m.Email] = struct{}{}
				view.Emails = append(view.Emails, *m.Email)
			}
		}
		if m.PhoneNumber != nil {
			if _, ok := knownPhones[*m.PhoneNumber]; !ok {
				knownPhones[*m.PhoneNumber] = struct{}{}
				view.PhoneNumbers = append(view.PhoneNumbers, *m.PhoneNumber)
			}
		}
		if !m.IsPrimary() {
			view.SecondaryContactIDs = append(view.SecondaryContactIDs, m.ID)
		}
	}

	var newEmail, newPhone *string
	if f.Email != nil {
		if _, ok := knownEmails[*f.Email]; !ok {
			newEmail = f.Email
		}
	}
	if f.PhoneNumber != nil {
		if _, ok := knownPhones[*f.PhoneNumber]; !ok {
			newPhone = f.PhoneNumber
		}
	}

	if newEmail != nil || newPhone != nil {
		linkedID := primary.ID
		created, err := repo.Insert(ctx, models.Contact{
			Email:          newEmail,
			PhoneNumber:    newPhone,
			LinkedID:       &linkedID,
			LinkPrecedence: models.LinkPrecedenceSecondary,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			return Consolidation{}, fmt.Errorf("failed to create secondary contact: %w", err)
		}
		result.Created = &created
		if created.Email != nil {
			view.Emails = append(view.Emails, *created.Email)
		}
		if created.PhoneNumber != nil {
			view.PhoneNumbers = append(view.PhoneNumbers, *created.PhoneNumber)
		}
		view.SecondaryContactIDs = append(view.SecondaryContactIDs, created.ID)
	}

	var updates []models.Contact
	if result.Promoted {
		updates = append(updates, primary)
	}
	for _, m := range members {
		if m.ID == primary.ID {
			continue
		}
		switch {
		case m.IsPrimary():
			m = linkTo(m, primary.ID, now)
			result.Demoted = append(result.Demoted, m)
			view.SecondaryContactIDs = append(view.SecondaryContactIDs, m.ID)
		case m.LinkedID == nil || *m.LinkedID != primary.ID:
			m = linkTo(m, primary.ID, now)
			result.Relinked = append(result.Relinked, m)
		default:
			continue
		}
		updates = append(updates, m)
	}
	if len(updates) > 0 {
		if err := repo.UpdateMany(ctx, updates); err != nil {
			return Consolidation{}, fmt.Errorf("failed to reconcile primary status: %w", err)
		}
	}

	result.View = view
	return result, nil
}

func (c Consolidator) createPrimary(ctx context.Context, repo repository.ContactRepository, f models.Fragment, now time.Time) (Consolidation, error) {
	created, err := repo.Insert(ctx, models.Contact{
		Email:          f.Email,
		PhoneNumber:    f.PhoneNumber,
		LinkPrecedence: models.LinkPrecedencePrimary,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return Consolidation{}, fmt.Errorf("failed to create primary contact: %w", err)
	}

	view := models.ConsolidatedView{PrimaryContactID: created.ID}
	if created.Email != nil {
		view.Emails = []string{*created.Email}
	}
	if created.PhoneNumber != nil {
		view.PhoneNumbers = []string{*created.PhoneNumber}
	}
	return Consolidation{View: view, Primary: created, Created: &created}, nil
}

func linkTo(c models.Contact, primaryID int64, now time.Time) models.Contact {
	c.LinkPrecedence = models.LinkPrecedenceSecondary
	c.LinkedID = &primaryID
	c.UpdatedAt = now
	return c
}

// oldestIndex returns the index of the oldest contact matching keep, or -1.
func oldestIndex(contacts []models.Contact, keep func(models.Contact) bool) int {
	idx := -1
	for i, c := range contacts {
		if !keep(c) {
			continue
		}
		if idx < 0 || c.OlderThan(contacts[idx]) {
			idx = i
		}
	}
	return idx
}
