package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "landreg/pkg/domain"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults when unset", func(t *testing.T) {
		assert.True(t, Actor(ctx).IsNil())
		assert.Empty(t, RequestID(ctx))
		assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
	})

	t.Run("returns injected values", func(t *testing.T) {
		actor, err := id.ParseUserID("550e8400-e29b-41d4-a716-446655440000")
		assert.NoError(t, err)
		fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

		ctx := WithTime(WithRequestID(WithActor(ctx, actor), "req-1"), fixed)

		assert.Equal(t, actor, Actor(ctx))
		assert.Equal(t, "req-1", RequestID(ctx))
		assert.Equal(t, fixed, Now(ctx))
	})
}
