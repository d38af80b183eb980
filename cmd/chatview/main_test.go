package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petcare/internal/app/chat"
	"petcare/internal/infra/config"
)

func TestViewOptionsKeepsDefaultsForUnsetFields(t *testing.T) {
	opts := viewOptions(config.Config{
		PageSize:           20,
		PaginationCooldown: 2 * time.Second,
		LoadingTimeout:     7 * time.Second,
		DuplicateWindow:    3 * time.Second,
	})

	def := chat.DefaultOptions()
	assert.Equal(t, def.BoundaryTrailing, opts.BoundaryTrailing)
	assert.Equal(t, def.EndProximity, opts.EndProximity)
	assert.Equal(t, def.SteadyScrollThreshold, opts.SteadyScrollThreshold)
	assert.Equal(t, 2*time.Second, opts.PaginationCooldown)
	assert.Equal(t, 7*time.Second, opts.LoadingTimeout)
	assert.Equal(t, 3*time.Second, opts.DuplicateWindow)
}

func TestViewOptionsTriggerBeforePageBoundary(t *testing.T) {
	pager := chat.NewPager(viewOptions(config.Config{PageSize: 20, LoadingTimeout: 5 * time.Second}), nil)

	trigger, ok := pager.VisibleTrigger(17, 60)
	require.True(t, ok, "two rows short of the boundary")
	assert.Equal(t, 17, trigger.Index)

	_, ok = pager.VisibleTrigger(10, 60)
	assert.False(t, ok)
}
