package handoff_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/k-taniguchi/sidekick/pkg/model"
	"github.com/k-taniguchi/sidekick/pkg/tool/handoff"
)

func TestHandoffConsumeOnce(t *testing.T) {
	ctx := context.Background()
	x := handoff.New()

	// Nothing pending initially.
	_, ok := x.Consume()
	gt.False(t, ok)

	result, err := x.Execute(ctx, "handoff", map[string]any{"target": "status"})
	gt.NoError(t, err)
	gt.S(t, result).Contains("status")

	target, ok := x.Consume()
	gt.True(t, ok)
	gt.Equal(t, target, model.RoleStatus)

	// Consumed directives never re-trigger.
	_, ok = x.Consume()
	gt.False(t, ok)
}

func TestHandoffLatestWins(t *testing.T) {
	ctx := context.Background()
	x := handoff.New()

	_, err := x.Execute(ctx, "handoff", map[string]any{"target": "status"})
	gt.NoError(t, err)
	_, err = x.Execute(ctx, "handoff", map[string]any{"target": "activity"})
	gt.NoError(t, err)

	target, ok := x.Consume()
	gt.True(t, ok)
	gt.Equal(t, target, model.RoleActivity)
}

func TestReturnToPrimary(t *testing.T) {
	ctx := context.Background()
	x := handoff.New()

	_, err := x.Execute(ctx, "return_to_primary", map[string]any{})
	gt.NoError(t, err)

	target, ok := x.Consume()
	gt.True(t, ok)
	gt.Equal(t, target, model.RolePrimary)
}

func TestHandoffInvalidTarget(t *testing.T) {
	ctx := context.Background()
	x := handoff.New()

	_, err := x.Execute(ctx, "handoff", map[string]any{"target": "primary"})
	gt.Error(t, err)

	_, err = x.Execute(ctx, "handoff", map[string]any{"target": "janitor"})
	gt.Error(t, err)

	_, ok := x.Consume()
	gt.False(t, ok)
}
