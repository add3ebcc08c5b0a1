package identity

import (
	"context"
	"time"

	"github.com/Ramsey-B/iris/pkg/models"
)

type ChangeKind string

const (
	ChangeCreated  ChangeKind = "contact.created"
	ChangeExtended ChangeKind = "cluster.extended"
	ChangeMerged   ChangeKind = "cluster.merged"
)

// ClusterChange describes a cluster after an Identify call wrote to it.
type ClusterChange struct {
	Kind              ChangeKind
	PrimaryID         int64
	Contacts          []models.Contact
	NewContactID      *int64
	DemotedPrimaryIDs []int64
	OccurredAt        time.Time
}

// Observer receives cluster changes after they are committed. The store stays
// the source of truth, so observer errors are logged and never fail the call.
type Observer interface {
	Name() string
	OnClusterChange(ctx context.Context, change ClusterChange) error
}

func (r *Resolver) notify(ctx context.Context, change ClusterChange) {
	if change.OccurredAt.IsZero() {
		change.OccurredAt = time.Now().UTC()
	}
	for _, o := range r.observers {
		if err := o.OnClusterChange(ctx, change); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"observer":   o.Name(),
				"kind":       change.Kind,
				"primary_id": change.PrimaryID,
			}).Warnf("Observer %s failed to handle cluster change", o.Name())
		}
	}
}
