package messaging

// CurrentBookingMessages maps each booking id to the newest message that
// carries it. Older messages of the same booking are superseded and the UI
// renders them without actions.
func CurrentBookingMessages(list MessageList) map[string]MessageID {
	current := make(map[string]MessageID)
	for i := 0; i < list.Len(); i++ {
		m := list.At(i)
		id := m.Metadata.BookingID
		if id == "" || !m.Type.IsBookingType() {
			continue
		}
		if _, ok := current[id]; ok {
			continue
		}
		current[id] = m.ID
	}
	return current
}

// IsSuperseded reports whether a newer message for the same booking exists.
func IsSuperseded(current map[string]MessageID, m Message) bool {
	id := m.Metadata.BookingID
	if id == "" || !m.Type.IsBookingType() {
		return false
	}
	newest, ok := current[id]
	return ok && newest != m.ID
}
