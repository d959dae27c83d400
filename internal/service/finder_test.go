package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"identity-reconciliation/internal/models"
	"identity-reconciliation/internal/repository"
	"identity-reconciliation/internal/repository/mocks"
	"identity-reconciliation/internal/service"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func primary(id int64, email, phone string, createdAt time.Time) models.Contact {
	return models.Contact{
		ID:             id,
		Email:          optional(email),
		PhoneNumber:    optional(phone),
		LinkPrecedence: models.LinkPrecedencePrimary,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func secondary(id int64, email, phone string, linkedID int64, createdAt time.Time) models.Contact {
	c := primary(id, email, phone, createdAt)
	c.LinkPrecedence = models.LinkPrecedenceSecondary
	c.LinkedID = ptr(linkedID)
	return c
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func contactIDs(contacts []models.Contact) []int64 {
	out := make([]int64, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c.ID)
	}
	return out
}

func find(t *testing.T, store *repository.MemoryStore, f models.Fragment) service.Component {
	t.Helper()
	var comp service.Component
	require.NoError(t, store.WithinTx(context.Background(), func(repo repository.ContactRepository) error {
		var err error
		comp, err = service.Finder{}.Find(context.Background(), repo, f)
		return err
	}))
	return comp
}

func TestFinderNoMatch(t *testing.T) {
	store := repository.NewMemoryStore()
	store.Put(primary(1, "a@x.io", "1", t0))

	comp := find(t, store, models.NewFragment(ptr("b@x.io"), ptr("2")))
	assert.True(t, comp.Empty())
	assert.Zero(t, comp.Rounds)
}

func TestFinderEmptyFragmentSkipsStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockContactRepository(ctrl)

	comp, err := service.Finder{}.Find(context.Background(), repo, models.Fragment{})
	require.NoError(t, err)
	assert.True(t, comp.Empty())
}

func TestFinderFollowsLinksInBothDirections(t *testing.T) {
	store := repository.NewMemoryStore()
	store.Put(primary(1, "a@x.io", "1", t0))
	store.Put(secondary(2, "b@x.io", "2", 1, t0.Add(time.Minute)))
	store.Put(primary(3, "c@x.io", "3", t0.Add(2*time.Minute)))
	store.Put(secondary(4, "d@x.io", "4", 3, t0.Add(3*time.Minute)))
	store.Put(primary(5, "e@x.io", "5", t0.Add(4*time.Minute)))

	// Seeds are the two secondaries; their primaries are only reachable by
	// walking up the link.
	comp := find(t, store, models.NewFragment(ptr("b@x.io"), ptr("4")))
	assert.Equal(t, []int64{2, 4, 1, 3}, contactIDs(comp.Contacts))
	assert.Equal(t, 2, comp.Rounds)
}

func TestFinderReachesFixedPointOverChains(t *testing.T) {
	store := repository.NewMemoryStore()
	store.Put(primary(1, "a@x.io", "", t0))
	store.Put(secondary(2, "", "2", 1, t0.Add(time.Minute)))
	store.Put(secondary(3, "", "3", 2, t0.Add(2*time.Minute)))
	store.Put(secondary(4, "", "4", 3, t0.Add(3*time.Minute)))

	comp := find(t, store, models.NewFragment(ptr("a@x.io"), nil))
	assert.Equal(t, []int64{1, 2, 3, 4}, contactIDs(comp.Contacts))
	assert.Equal(t, 4, comp.Rounds)
}

func TestFinderDoesNotExpandThroughIdentifiers(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockContactRepository(ctrl)

	// Contact 1 shares phone "9" with an unrelated contact; only one
	// identifier query may ever be issued.
	c1 := primary(1, "a@x.io", "9", t0)
	repo.EXPECT().FindByEmailOrPhone(gomock.Any(), ptr("a@x.io"), nil).Return([]models.Contact{c1}, nil).Times(1)
	repo.EXPECT().FindByLinkedIDIn(gomock.Any(), []int64{1}).Return(nil, nil).Times(1)

	comp, err := service.Finder{}.Find(context.Background(), repo, models.NewFragment(ptr("a@x.io"), nil))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, contactIDs(comp.Contacts))
	assert.Equal(t, 1, comp.Rounds)
}

func TestFinderPropagatesStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockContactRepository(ctrl)
	boom := errors.New("connection reset")

	repo.EXPECT().FindByEmailOrPhone(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]models.Contact{primary(1, "a@x.io", "", t0)}, nil)
	repo.EXPECT().FindByLinkedIDIn(gomock.Any(), []int64{1}).Return(nil, boom)

	_, err := service.Finder{}.Find(context.Background(), repo, models.NewFragment(ptr("a@x.io"), nil))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "expansion round 1")
}
