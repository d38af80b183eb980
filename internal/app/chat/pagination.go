package chat

import (
	"sync"
	"time"

	"petcare/internal/domain/messaging"
)

// PaginationState is the load-older bookkeeping of the active conversation.
type PaginationState struct {
	CurrentPage      int
	HasMore          bool
	IsLoadingMore    bool
	TriggeredIndices map[int]struct{}
}

// TriggerSource names the viewport signal that asked for an older page.
type TriggerSource string

const (
	SourceVisibility TriggerSource = "visibility"
	SourceScroll     TriggerSource = "scroll"
	SourceEndReached TriggerSource = "end_reached"
	SourceManual     TriggerSource = "manual"
)

// Trigger is a request to load the next older page. Force skips the
// already-used index guard and the cooldown.
type Trigger struct {
	Index  int
	Force  bool
	Source TriggerSource
}

// Ticket identifies one in-flight page load.
type Ticket struct {
	ConversationID messaging.ConversationID
	Page           int
	Index          int
	generation     uint64
	seq            uint64
}

// ScrollMetrics describes the list's scroll position in pixels.
type ScrollMetrics struct {
	Offset         float64
	ContentHeight  float64
	ViewportHeight float64
	// Momentum marks momentum-end and list-end signals, which use the wider
	// threshold.
	Momentum bool
}

// Remaining is the scrollable distance left before the end of content.
func (m ScrollMetrics) Remaining() float64 {
	return m.ContentHeight - (m.Offset + m.ViewportHeight)
}

// Pager runs the Idle/Loading state machine for the active conversation.
type Pager struct {
	opts  Options
	clock Clock

	mu             sync.Mutex
	conversationID messaging.ConversationID
	currentPage    int
	hasMore        bool
	loading        bool
	loadingSince   time.Time
	lastTrigger    time.Time
	used           map[int]struct{}
	generation     uint64
	seq            uint64
}

func NewPager(opts Options, clock Clock) *Pager {
	if clock == nil {
		clock = time.Now
	}
	return &Pager{
		opts:        opts.withDefaults(),
		clock:       clock,
		currentPage: 1,
		used:        make(map[int]struct{}),
	}
}

// Reset starts over for conversationID. Tickets issued before the reset are
// rejected by Complete and Fail.
func (p *Pager) Reset(conversationID messaging.ConversationID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conversationID = conversationID
	p.currentPage = 1
	p.hasMore = false
	p.loading = false
	p.loadingSince = time.Time{}
	p.lastTrigger = time.Time{}
	p.used = make(map[int]struct{})
	p.generation++
}

// FirstPageLoaded records the result of the page-1 fetch.
func (p *Pager) FirstPageLoaded(conversationID messaging.ConversationID, hasMore bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conversationID != p.conversationID {
		return
	}
	p.currentPage = 1
	p.hasMore = hasMore
}

// Begin applies the gate and, when it passes, moves to Loading.
func (p *Pager) Begin(t Trigger) (Ticket, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock()
	if p.conversationID == "" || !p.hasMore {
		return Ticket{}, false
	}
	if p.isLoadingLocked(now) {
		return Ticket{}, false
	}
	if !t.Force {
		if _, ok := p.used[t.Index]; ok {
			return Ticket{}, false
		}
		if !p.lastTrigger.IsZero() && now.Sub(p.lastTrigger) < p.opts.PaginationCooldown {
			return Ticket{}, false
		}
	}
	p.used[t.Index] = struct{}{}
	p.seq++
	p.loading = true
	p.loadingSince = now
	p.lastTrigger = now
	return Ticket{
		ConversationID: p.conversationID,
		Page:           p.currentPage + 1,
		Index:          t.Index,
		generation:     p.generation,
		seq:            p.seq,
	}, true
}

// Complete finishes a successful load. It returns false for stale tickets.
func (p *Pager) Complete(ticket Ticket, hasMore bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.currentLocked(ticket) {
		return false
	}
	p.currentPage = ticket.Page
	p.hasMore = hasMore
	p.loading = false
	return true
}

// Fail finishes a failed load. HasMore is untouched and the trigger index is
// released so the same page can be asked for again.
func (p *Pager) Fail(ticket Ticket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.currentLocked(ticket) {
		return
	}
	p.loading = false
	delete(p.used, ticket.Index)
}

// State returns a copy of the current pagination state.
func (p *Pager) State() PaginationState {
	p.mu.Lock()
	defer p.mu.Unlock()
	used := make(map[int]struct{}, len(p.used))
	for k := range p.used {
		used[k] = struct{}{}
	}
	return PaginationState{
		CurrentPage:      p.currentPage,
		HasMore:          p.hasMore,
		IsLoadingMore:    p.isLoadingLocked(p.clock()),
		TriggeredIndices: used,
	}
}

func (p *Pager) currentLocked(ticket Ticket) bool {
	return ticket.generation == p.generation && ticket.seq == p.seq && ticket.Page == p.currentPage+1
}

// isLoadingLocked expires a load that never settled.
func (p *Pager) isLoadingLocked(now time.Time) bool {
	if !p.loading {
		return false
	}
	if now.Sub(p.loadingSince) >= p.opts.LoadingTimeout {
		p.loading = false
		return false
	}
	return true
}

// VisibleTrigger turns the oldest rendered index into a trigger when it sits
// just before a page boundary or near the end of the list.
func (p *Pager) VisibleTrigger(oldestIndex, listLen int) (Trigger, bool) {
	if oldestIndex < 0 || listLen <= 0 {
		return Trigger{}, false
	}
	size := p.opts.PageSize
	rendered := oldestIndex + 1
	nearBoundary := false
	if rendered >= size-p.opts.BoundaryTrailing {
		rem := rendered % size
		nearBoundary = rem == 0 || size-rem <= p.opts.BoundaryTrailing
	}
	nearEnd := listLen-1-oldestIndex < p.opts.EndProximity
	if !nearBoundary && !nearEnd {
		return Trigger{}, false
	}
	return Trigger{Index: oldestIndex, Source: SourceVisibility}, true
}

// ScrollTrigger fires when little scrollable distance is left. Reaching the
// end of content forces the trigger.
func (p *Pager) ScrollTrigger(m ScrollMetrics, listLen int) (Trigger, bool) {
	if listLen <= 0 || m.ContentHeight <= 0 {
		return Trigger{}, false
	}
	threshold := p.opts.SteadyScrollThreshold
	if m.Momentum {
		threshold = p.opts.MomentumScrollThreshold
	}
	remaining := m.Remaining()
	if remaining >= threshold {
		return Trigger{}, false
	}
	return Trigger{Index: listLen - 1, Force: remaining <= 0, Source: SourceScroll}, true
}

// EndReachedTrigger is the backstop for missed visibility events.
func (p *Pager) EndReachedTrigger(listLen int) (Trigger, bool) {
	if listLen <= 0 {
		return Trigger{}, false
	}
	return Trigger{Index: listLen - 1, Force: true, Source: SourceEndReached}, true
}
