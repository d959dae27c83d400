package repository

import (
	"context"
	"time"

	"identity-reconciliation/internal/models"
)

// Example contact inserted into an empty store when seeding is enabled.
const (
	SeedEmail       = "seed@example.com"
	SeedPhoneNumber = "+11111111111"
)

// SeedExample inserts one example primary contact if the store is empty and
// reports whether it did.
func SeedExample(ctx context.Context, tx Transactor, now time.Time) (bool, error) {
	seeded := false
	err := tx.WithinTx(ctx, func(repo ContactRepository) error {
		n, err := repo.Count(ctx)
		if err != nil || n > 0 {
			return err
		}
		email, phone := SeedEmail, SeedPhoneNumber
		_, err = repo.Insert(ctx, models.Contact{
			Email:          &email,
			PhoneNumber:    &phone,
			LinkPrecedence: models.LinkPrecedencePrimary,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		seeded = err == nil
		return err
	})
	if err != nil {
		return false, err
	}
	return seeded, nil
}
