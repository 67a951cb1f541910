package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRecordsMessages(t *testing.T) {
	t.Parallel()

	p := New()
	ctx := context.Background()

	id1, err := p.Publish(ctx, "runs", map[string]string{"status": "drained"})
	require.NoError(t, err)
	id2, err := p.Publish(ctx, "runs", map[string]string{"status": "error"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "runs", msgs[0].Topic)
	assert.JSONEq(t, `{"status":"drained"}`, string(msgs[0].Data))
}

func TestPublishErr(t *testing.T) {
	t.Parallel()

	p := New()
	p.PublishErr = errors.New("broker down")

	_, err := p.Publish(context.Background(), "runs", "x")
	assert.ErrorIs(t, err, p.PublishErr)
	assert.Empty(t, p.Messages())
}
