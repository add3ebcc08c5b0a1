package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/iris/pkg/identity"
	"github.com/Ramsey-B/iris/pkg/models"
)

var _ identity.Observer = (*Projector)(nil)

func TestProjectionParams(t *testing.T) {
	email := "a@x.io"
	phone := "1"
	primary := int64(1)
	at := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)

	params := projectionParams(identity.ClusterChange{
		PrimaryID: 1,
		Contacts: []models.Contact{
			{ID: 1, Email: &email, LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at, UpdatedAt: at},
			{ID: 2, PhoneNumber: &phone, LinkedID: &primary, LinkPrecedence: models.LinkPrecedenceSecondary, CreatedAt: at, UpdatedAt: at},
		},
	})

	contacts, ok := params["contacts"].([]any)
	require.True(t, ok)
	require.Len(t, contacts, 2)

	first := contacts[0].(map[string]any)
	assert.Equal(t, int64(1), first["id"])
	assert.Equal(t, "a@x.io", first["email"])
	assert.Nil(t, first["phone_number"])
	assert.Nil(t, first["linked_id"])
	assert.Equal(t, "primary", first["link_precedence"])
	assert.Equal(t, "2023-04-01T12:00:00.000Z", first["created_at"])

	second := contacts[1].(map[string]any)
	assert.Equal(t, int64(1), second["linked_id"])
	assert.Equal(t, "1", second["phone_number"])
}

type failingWriter struct{}

func (failingWriter) ExecuteWrite(context.Context, func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	return nil, errors.New("connection refused")
}

func TestProjector_WriteError(t *testing.T) {
	p := NewProjector(failingWriter{}, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	err := p.OnClusterChange(context.Background(), identity.ClusterChange{PrimaryID: 9})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster 9")
}
