package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishClusterEvents(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "iris.contacts", ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))

	id := int64(7)
	err := p.PublishClusterEvents(context.Background(), &ClusterEvent{
		EventType:        "cluster.extended",
		PrimaryContactID: 3,
		ContactID:        &id,
		Cluster:          json.RawMessage(`[]`),
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "iris.contacts", msg.Topic)
	assert.Equal(t, "3", string(msg.Key))

	var decoded ClusterEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, SchemaVersion, decoded.SchemaVersion)
	assert.False(t, decoded.Timestamp.IsZero())
	require.NotNil(t, decoded.ContactID)
	assert.Equal(t, int64(7), *decoded.ContactID)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "cluster.extended", headers["event_type"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishClusterEvents_WriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, "iris.contacts", ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))

	err := p.PublishClusterEvents(context.Background(), &ClusterEvent{EventType: "contact.created", PrimaryContactID: 1})
	assert.Error(t, err)
	assert.NoError(t, p.PublishClusterEvents(context.Background()))
}
