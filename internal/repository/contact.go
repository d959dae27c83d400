package repository

import (
	"context"

	"identity-reconciliation/internal/models"
)

//go:generate mockgen -source=contact.go -destination=mocks/contact_repository_mock.go -package=mocks

// ContactRepository is the narrow persistence contract the reconciliation core
// depends on. Reads return contacts ordered by ascending id.
type ContactRepository interface {
	// FindByEmailOrPhone returns contacts whose email equals email OR whose phone
	// number equals phoneNumber. A nil argument skips that comparison; both nil
	// yields no contacts.
	FindByEmailOrPhone(ctx context.Context, email, phoneNumber *string) ([]models.Contact, error)
	// FindByLinkedIDIn returns contacts whose linked id is one of ids.
	FindByLinkedIDIn(ctx context.Context, ids []int64) ([]models.Contact, error)
	// FindByIDIn returns the contacts with the given ids.
	FindByIDIn(ctx context.Context, ids []int64) ([]models.Contact, error)
	// Insert persists c and returns it with the store-assigned id.
	Insert(ctx context.Context, c models.Contact) (models.Contact, error)
	// UpdateMany persists the link precedence, linked id and updated-at of
	// every contact. Email and phone number are never rewritten.
	UpdateMany(ctx context.Context, contacts []models.Contact) error
	// Count returns the number of stored contacts.
	Count(ctx context.Context) (int64, error)
}

// Transactor runs fn against a repository bound to one atomic unit of work.
// Everything fn writes is committed when it returns nil and discarded otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(repo ContactRepository) error) error
}
