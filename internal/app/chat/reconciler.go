package chat

import (
	"time"

	"petcare/internal/domain/messaging"
)

type Outcome int

const (
	OutcomeDuplicate Outcome = iota
	OutcomeResolved
	OutcomeInserted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeResolved:
		return "resolved"
	case OutcomeInserted:
		return "inserted"
	default:
		return "unknown"
	}
}

// Reconciler merges incoming messages into a conversation's list.
type Reconciler struct {
	dedup  *DedupStore
	window time.Duration
}

func NewReconciler(dedup *DedupStore, window time.Duration) *Reconciler {
	if window <= 0 {
		window = DefaultOptions().DuplicateWindow
	}
	return &Reconciler{dedup: dedup, window: window}
}

// Reconcile returns the list with in applied and what happened to it:
//  1. a known server id is a duplicate;
//  2. a confirmed message with the same body and sender side inside the
//     duplicate window is a duplicate (server echo of our own send);
//  3. an optimistic message with the same body is replaced in place when in
//     comes from us;
//  4. anything else is prepended as the newest message.
//
// A pending optimistic match outranks rule 2, so sending the same text twice
// in a row confirms both copies instead of dropping the second echo.
func (r *Reconciler) Reconcile(list messaging.MessageList, in messaging.Message) (messaging.MessageList, Outcome) {
	if in.IsOptimistic {
		return list.Prepend(in), OutcomeInserted
	}
	if r.dedup.HasSeen(in.ConversationID, in.ID) {
		return list, OutcomeDuplicate
	}

	optimistic := -1
	echo := false
	for i := 0; i < list.Len(); i++ {
		existing := list.At(i)
		if existing.IsOptimistic {
			if !in.SentByOtherUser && existing.SameBody(in) {
				// keep scanning: the oldest pending copy resolves first
				optimistic = i
			}
			continue
		}
		if in.ID != "" && existing.ID == in.ID {
			return list, OutcomeDuplicate
		}
		if existing.SentByOtherUser == in.SentByOtherUser && existing.SameBody(in) && existing.WithinWindow(in, r.window) {
			echo = true
		}
	}

	if optimistic >= 0 {
		confirmed := list.At(optimistic).Confirm(in)
		r.dedup.MarkSeen(in.ConversationID, in.ID)
		return list.Replace(optimistic, confirmed), OutcomeResolved
	}
	if echo {
		return list, OutcomeDuplicate
	}

	r.dedup.MarkSeen(in.ConversationID, in.ID)
	return list.Prepend(in), OutcomeInserted
}
