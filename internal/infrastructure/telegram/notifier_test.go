package telegram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSummaryMisconfigured(t *testing.T) {
	t.Parallel()

	err := NewNotifier("", "chat").PublishSummary(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "misconfigured")

	err = NewNotifier("token", "").PublishSummary(context.Background(), "hi")
	require.Error(t, err)
}
