// Package events publishes contact cluster changes to Kafka.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/iris/pkg/identity"
	"github.com/Ramsey-B/iris/pkg/kafka"
	"github.com/Ramsey-B/iris/pkg/models"
	"github.com/Ramsey-B/iris/pkg/tracing"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishClusterEvents(ctx context.Context, events ...*kafka.ClusterEvent) error
}

// Emitter turns cluster changes into Kafka events.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

func (e *Emitter) Name() string {
	return "kafka"
}

// OnClusterChange emits one event for the change.
func (e *Emitter) OnClusterChange(ctx context.Context, change identity.ClusterChange) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.OnClusterChange")
	defer span.End()

	cluster, err := json.Marshal(clusterMembers(change.Contacts))
	if err != nil {
		return err
	}

	event := &kafka.ClusterEvent{
		EventType:         string(change.Kind),
		PrimaryContactID:  change.PrimaryID,
		ContactID:         change.NewContactID,
		DemotedPrimaryIDs: change.DemotedPrimaryIDs,
		Cluster:           cluster,
		Timestamp:         change.OccurredAt,
	}

	if err := e.publisher.PublishClusterEvents(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", change.Kind)
		return err
	}
	return nil
}

type member struct {
	ID             int64                 `json:"id"`
	Email          *string               `json:"email"`
	PhoneNumber    *string               `json:"phone_number"`
	LinkedID       *int64                `json:"linked_id"`
	LinkPrecedence models.LinkPrecedence `json:"link_precedence"`
}

func clusterMembers(contacts []models.Contact) []member {
	out := make([]member, len(contacts))
	for i, c := range contacts {
		out[i] = member{
			ID:             c.ID,
			Email:          c.Email,
			PhoneNumber:    c.PhoneNumber,
			LinkedID:       c.LinkedID,
			LinkPrecedence: c.LinkPrecedence,
		}
	}
	return out
}
