package messaging

// MessageList is an immutable newest-first message list. Index 0 is the
// newest message. Items are stored oldest-first so that adding a new message
// is an amortized O(1) append.
type MessageList struct {
	items []Message
}

// NewMessageList builds a list from newest-first messages.
func NewMessageList(newestFirst []Message) MessageList {
	items := make([]Message, len(newestFirst))
	for i, m := range newestFirst {
		items[len(newestFirst)-1-i] = m
	}
	return MessageList{items: items}
}

func (l MessageList) Len() int { return len(l.items) }

// At returns the i-th newest message.
func (l MessageList) At(i int) Message {
	return l.items[len(l.items)-1-i]
}

// Messages returns a newest-first copy.
func (l MessageList) Messages() []Message {
	out := make([]Message, len(l.items))
	for i := range l.items {
		out[i] = l.items[len(l.items)-1-i]
	}
	return out
}

// Prepend adds m as the newest message. The receiver is left untouched.
func (l MessageList) Prepend(m Message) MessageList {
	n := len(l.items)
	return MessageList{items: append(l.items[:n:n], m)}
}

// AppendOlder adds a newest-first page of older messages at the old end.
func (l MessageList) AppendOlder(newestFirst []Message) MessageList {
	if len(newestFirst) == 0 {
		return l
	}
	items := make([]Message, 0, len(l.items)+len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		items = append(items, newestFirst[i])
	}
	items = append(items, l.items...)
	return MessageList{items: items}
}

// Replace returns a copy with the i-th newest message swapped for m.
func (l MessageList) Replace(i int, m Message) MessageList {
	items := append([]Message(nil), l.items...)
	items[len(items)-1-i] = m
	return MessageList{items: items}
}

// RemoveLocal drops the optimistic message carrying localID.
func (l MessageList) RemoveLocal(localID string) (MessageList, bool) {
	if localID == "" {
		return l, false
	}
	for i, m := range l.items {
		if m.LocalID == localID && m.IsOptimistic {
			items := make([]Message, 0, len(l.items)-1)
			items = append(items, l.items[:i]...)
			items = append(items, l.items[i+1:]...)
			return MessageList{items: items}, true
		}
	}
	return l, false
}

// IndexOf returns the newest-first index of the message with id, or -1.
func (l MessageList) IndexOf(id MessageID) int {
	if id == "" {
		return -1
	}
	for i := len(l.items) - 1; i >= 0; i-- {
		if l.items[i].ID == id {
			return len(l.items) - 1 - i
		}
	}
	return -1
}
