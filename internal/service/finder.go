package service

import (
	"context"
	"fmt"

	"identity-reconciliation/internal/models"
	"identity-reconciliation/internal/repository"
)

// Component is the set of contacts transitively connected to a fragment.
type Component struct {
	// Contacts are ordered by discovery: seed matches first, by id.
	Contacts []models.Contact
	// Rounds is the number of link expansion rounds run after the seed query.
	Rounds int
}

// Empty reports whether nothing matched the fragment.
func (c Component) Empty() bool { return len(c.Contacts) == 0 }

// Finder discovers the connected component of a fragment.
type Finder struct{}

// Find seeds the component with every contact sharing the fragment's email or
// phone number, then follows link references in both directions (contacts
// linked to a known id, and the contact a known one is linked to) until a
// round discovers nothing new. It never re-expands through the email or phone
// of discovered contacts, and it assumes no bound on the number of rounds.
func (Finder) Find(ctx context.Context, repo repository.ContactRepository, f models.Fragment) (Component, error) {
	if f.Empty() {
		return Component{}, nil
	}

	seed, err := repo.FindByEmailOrPhone(ctx, f.Email, f.PhoneNumber)
	if err != nil {
		return Component{}, fmt.Errorf("seed query: %w", err)
	}
	if len(seed) == 0 {
		return Component{}, nil
	}

	found := make(map[int64]struct{}, len(seed))
	comp := Component{}
	frontier := comp.absorb(found, seed)

	for len(frontier) > 0 {
		comp.Rounds++

		frontierIDs := make([]int64, 0, len(frontier))
		var parentIDs []int64
		for _, c := range frontier {
			frontierIDs = append(frontierIDs, c.ID)
			if c.LinkedID == nil {
				continue
			}
			if _, ok := found[*c.LinkedID]; !ok && !containsID(parentIDs, *c.LinkedID) {
				parentIDs = append(parentIDs, *c.LinkedID)
			}
		}

		children, err := repo.FindByLinkedIDIn(ctx, frontierIDs)
		if err != nil {
			return Component{}, fmt.Errorf("expansion round %d: %w", comp.Rounds, err)
		}
		var parents []models.Contact
		if len(parentIDs) > 0 {
			if parents, err = repo.FindByIDIn(ctx, parentIDs); err != nil {
				return Component{}, fmt.Errorf("expansion round %d: %w", comp.Rounds, err)
			}
		}

		frontier = comp.absorb(found, append(children, parents...))
	}
	return comp, nil
}

// absorb adds the contacts not yet found and returns them.
func (c *Component) absorb(found map[int64]struct{}, contacts []models.Contact) []models.Contact {
	var added []models.Contact
	for _, contact := range contacts {
		if _, ok := found[contact.ID]; ok {
			continue
		}
		found[contact.ID] = struct{}{}
		c.Contacts = append(c.Contacts, contact)
		added = append(added, contact)
	}
	return added
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
