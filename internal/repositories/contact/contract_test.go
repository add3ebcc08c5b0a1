package contact

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/iris/pkg/identity"
	"github.com/Ramsey-B/iris/pkg/models"
)

type storeUnderTest interface {
	identity.Store
	SoftDelete(ctx context.Context, id int64) (bool, error)
}

var (
	_ storeUnderTest = (*MemoryStore)(nil)
	_ storeUnderTest = (*Repository)(nil)
)

func strPtr(s string) *string { return &s }

func ids(contacts []models.Contact) []int64 {
	out := make([]int64, len(contacts))
	for i, c := range contacts {
		out[i] = c.ID
	}
	return out
}

// runStoreContract checks the behaviour every store implementation shares.
// newStore must return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) storeUnderTest) {
	ctx := context.Background()

	t.Run("create and find by id", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, models.CreateContactRequest{
			Email:       strPtr("lorraine@hillvalley.edu"),
			PhoneNumber: strPtr("123456"),
		})
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, models.LinkPrecedencePrimary, created.LinkPrecedence)
		assert.Nil(t, created.LinkedID)
		assert.False(t, created.CreatedAt.IsZero())

		found, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "lorraine@hillvalley.edu", *found.Email)
		assert.Equal(t, "123456", *found.PhoneNumber)

		missing, err := s.FindByID(ctx, created.ID+1000)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("find by email or phone is ordered and skips deleted", func(t *testing.T) {
		s := newStore(t)
		a, err := s.Create(ctx, models.CreateContactRequest{Email: strPtr("a@x.io")})
		require.NoError(t, err)
		b, err := s.Create(ctx, models.CreateContactRequest{PhoneNumber: strPtr("1")})
		require.NoError(t, err)
		c, err := s.Create(ctx, models.CreateContactRequest{Email: strPtr("a@x.io"), PhoneNumber: strPtr("2")})
		require.NoError(t, err)
		_, err = s.Create(ctx, models.CreateContactRequest{Email: strPtr("other@x.io")})
		require.NoError(t, err)

		found, err := s.FindByEmailOrPhone(ctx, strPtr("a@x.io"), strPtr("1"))
		require.NoError(t, err)
		assert.Equal(t, []int64{a.ID, b.ID, c.ID}, ids(found))

		found, err = s.FindByEmailOrPhone(ctx, nil, strPtr("1"))
		require.NoError(t, err)
		assert.Equal(t, []int64{b.ID}, ids(found))

		deleted, err := s.SoftDelete(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		found, err = s.FindByEmailOrPhone(ctx, strPtr("a@x.io"), nil)
		require.NoError(t, err)
		assert.Equal(t, []int64{c.ID}, ids(found))

		gone, err := s.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		none, err := s.FindByEmailOrPhone(ctx, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("set secondary and relink children", func(t *testing.T) {
		s := newStore(t)
		p1, err := s.Create(ctx, models.CreateContactRequest{Email: strPtr("a@x.io")})
		require.NoError(t, err)
		p2, err := s.Create(ctx, models.CreateContactRequest{PhoneNumber: strPtr("2")})
		require.NoError(t, err)
		child, err := s.Create(ctx, models.CreateContactRequest{
			Email:          strPtr("b@x.io"),
			PhoneNumber:    strPtr("2"),
			LinkedID:       &p2.ID,
			LinkPrecedence: models.LinkPrecedenceSecondary,
		})
		require.NoError(t, err)

		children, err := s.FindByLinkedIDs(ctx, []int64{p1.ID, p2.ID})
		require.NoError(t, err)
		assert.Equal(t, []int64{child.ID}, ids(children))

		require.NoError(t, s.SetSecondary(ctx, p2.ID, p1.ID))
		require.NoError(t, s.RelinkChildren(ctx, p2.ID, p1.ID))

		demoted, err := s.FindByID(ctx, p2.ID)
		require.NoError(t, err)
		assert.Equal(t, models.LinkPrecedenceSecondary, demoted.LinkPrecedence)
		require.NotNil(t, demoted.LinkedID)
		assert.Equal(t, p1.ID, *demoted.LinkedID)
		assert.False(t, demoted.UpdatedAt.Before(demoted.CreatedAt))

		children, err = s.FindByLinkedIDs(ctx, []int64{p1.ID})
		require.NoError(t, err)
		assert.Equal(t, []int64{p2.ID, child.ID}, ids(children))

		byIDs, err := s.FindByIDs(ctx, []int64{child.ID, p1.ID})
		require.NoError(t, err)
		assert.Equal(t, []int64{p1.ID, child.ID}, ids(byIDs))
	})

	t.Run("run in tx rolls back on error", func(t *testing.T) {
		s := newStore(t)
		p1, err := s.Create(ctx, models.CreateContactRequest{Email: strPtr("a@x.io")})
		require.NoError(t, err)
		p2, err := s.Create(ctx, models.CreateContactRequest{Email: strPtr("b@x.io")})
		require.NoError(t, err)

		boom := errors.New("boom")
		err = s.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.SetSecondary(ctx, p2.ID, p1.ID); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		unchanged, err := s.FindByID(ctx, p2.ID)
		require.NoError(t, err)
		assert.Equal(t, models.LinkPrecedencePrimary, unchanged.LinkPrecedence)
		assert.Nil(t, unchanged.LinkedID)

		require.NoError(t, s.RunInTx(ctx, func(ctx context.Context) error {
			return s.SetSecondary(ctx, p2.ID, p1.ID)
		}))
		changed, err := s.FindByID(ctx, p2.ID)
		require.NoError(t, err)
		assert.Equal(t, models.LinkPrecedenceSecondary, changed.LinkPrecedence)
	})
}
