package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petcare/internal/domain/messaging"
)

func TestDedupStoreScopesByConversation(t *testing.T) {
	s := NewDedupStore()
	s.MarkSeen("c1", "m1")
	s.MarkPageProcessed("c1", 2)

	assert.True(t, s.HasSeen("c1", "m1"))
	assert.False(t, s.HasSeen("c2", "m1"))
	assert.True(t, s.HasProcessedPage("c1", 2))
	assert.False(t, s.HasProcessedPage("c2", 2))
}

func TestDedupStoreIgnoresEmptyIDs(t *testing.T) {
	s := NewDedupStore()
	s.MarkSeen("c1", "")
	assert.False(t, s.HasSeen("c1", ""))
}

func TestDedupStoreReset(t *testing.T) {
	s := NewDedupStore()
	s.MarkSeen("c1", "m1")
	s.MarkSeen("c2", "m2")
	s.MarkPageProcessed("c1", 2)

	s.Reset("c1")
	assert.False(t, s.HasSeen("c1", "m1"))
	assert.False(t, s.HasProcessedPage("c1", 2))
	assert.True(t, s.HasSeen("c2", "m2"))

	s.ResetAll()
	assert.False(t, s.HasSeen("c2", "m2"))
}

func TestDedupStoreCommitPage(t *testing.T) {
	s := NewDedupStore()
	s.MarkSeen("c1", "m3")
	gen := s.Generation("c1")

	fresh, ok := s.CommitPage("c1", gen, 2, []messaging.Message{{ID: "m3"}, {ID: "m2"}, {ID: "m2"}})
	require.True(t, ok)
	assert.Equal(t, []messaging.MessageID{"m2"}, idsOf(fresh))
	assert.True(t, s.HasProcessedPage("c1", 2))

	_, ok = s.CommitPage("c1", gen, 2, []messaging.Message{{ID: "m1"}})
	assert.False(t, ok, "page already applied")
	assert.False(t, s.HasSeen("c1", "m1"))
}

func TestDedupStoreCommitPageAfterResetIsRefused(t *testing.T) {
	s := NewDedupStore()
	gen := s.Generation("c1")
	other := s.Generation("c2")

	s.Reset("c1")
	_, ok := s.CommitPage("c1", gen, 2, []messaging.Message{{ID: "m2"}})
	assert.False(t, ok)
	assert.False(t, s.HasProcessedPage("c1", 2), "stale result leaves the page fetchable")
	assert.False(t, s.HasSeen("c1", "m2"))

	_, ok = s.CommitPage("c2", other, 2, nil)
	assert.True(t, ok, "other conversations keep their generation")

	s.ResetAll()
	_, ok = s.CommitPage("c2", other, 3, nil)
	assert.False(t, ok)
}
