package identity

import (
	"context"

	"github.com/Ramsey-B/iris/pkg/models"
)

// Store is the contact repository the resolver reads and writes through.
// Every read excludes soft-deleted contacts.
type Store interface {
	// FindByID returns nil, nil when the contact does not exist.
	FindByID(ctx context.Context, id int64) (*models.Contact, error)
	FindByIDs(ctx context.Context, ids []int64) ([]models.Contact, error)
	// FindByEmailOrPhone matches on either attribute that is non-nil, ordered by
	// created_at then id.
	FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]models.Contact, error)
	// FindByLinkedIDs returns the direct secondaries of the given contacts.
	FindByLinkedIDs(ctx context.Context, ids []int64) ([]models.Contact, error)
	Create(ctx context.Context, req models.CreateContactRequest) (*models.Contact, error)
	// SetSecondary demotes id and points it at linkedID.
	SetSecondary(ctx context.Context, id, linkedID int64) error
	// RelinkChildren moves every contact linked to oldPrimaryID onto newPrimaryID.
	RelinkChildren(ctx context.Context, oldPrimaryID, newPrimaryID int64) error
	// RunInTx runs fn inside one transaction, committing only when fn succeeds.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
