package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/iris/pkg/identity"
	"github.com/Ramsey-B/iris/pkg/metrics"
	"github.com/Ramsey-B/iris/pkg/tracing"
)

// Writer is satisfied by *Client.
type Writer interface {
	ExecuteWrite(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error)
}

// upsertContacts replaces each contact's properties and drops its outgoing link,
// which linkContacts then recreates from linked_id.
const upsertContacts = `
	UNWIND $contacts AS c
	MERGE (n:Contact {id: c.id})
	SET n.email = c.email,
		n.phone_number = c.phone_number,
		n.link_precedence = c.link_precedence,
		n.created_at = c.created_at,
		n.updated_at = c.updated_at
	WITH n
	OPTIONAL MATCH (n)-[old:LINKED_TO]->()
	DELETE old
`

const linkContacts = `
	UNWIND $contacts AS c
	WITH c WHERE c.linked_id IS NOT NULL
	MATCH (n:Contact {id: c.id})
	MERGE (p:Contact {id: c.linked_id})
	MERGE (n)-[:LINKED_TO]->(p)
`

// Projector keeps a Contact node per contact and a LINKED_TO edge from each
// secondary to its primary.
type Projector struct {
	writer Writer
	logger ectologger.Logger
}

func NewProjector(writer Writer, logger ectologger.Logger) *Projector {
	return &Projector{
		writer: writer,
		logger: logger,
	}
}

func (p *Projector) Name() string {
	return "graph"
}

func (p *Projector) OnClusterChange(ctx context.Context, change identity.ClusterChange) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.OnClusterChange")
	defer span.End()

	params := projectionParams(change)
	_, err := p.writer.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, cypher := range []string{upsertContacts, linkContacts} {
			result, err := tx.Run(ctx, cypher, params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		metrics.RecordGraphProjection("error")
		p.logger.WithContext(ctx).WithError(err).WithField("primary_id", change.PrimaryID).Error("Failed to project cluster into graph")
		return fmt.Errorf("failed to project cluster %d: %w", change.PrimaryID, err)
	}
	metrics.RecordGraphProjection("success")

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"primary_id": change.PrimaryID,
		"contacts":   len(change.Contacts),
	}).Debug("Projected cluster into graph")
	return nil
}

// projectionParams flattens contacts into bolt-friendly maps.
func projectionParams(change identity.ClusterChange) map[string]any {
	contacts := make([]any, 0, len(change.Contacts))
	for _, c := range change.Contacts {
		row := map[string]any{
			"id":              c.ID,
			"email":           nil,
			"phone_number":    nil,
			"linked_id":       nil,
			"link_precedence": string(c.LinkPrecedence),
			"created_at":      c.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
			"updated_at":      c.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		}
		if c.Email != nil {
			row["email"] = *c.Email
		}
		if c.PhoneNumber != nil {
			row["phone_number"] = *c.PhoneNumber
		}
		if c.LinkedID != nil {
			row["linked_id"] = *c.LinkedID
		}
		contacts = append(contacts, row)
	}
	return map[string]any{"contacts": contacts}
}
