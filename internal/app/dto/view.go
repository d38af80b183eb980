package dto

// ViewSelection mirrors the selection state machine.
type ViewSelection struct {
	Phase          string `json:"phase"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ViewPagination is the load-older state of the open thread.
type ViewPagination struct {
	CurrentPage   int  `json:"current_page"`
	HasMore       bool `json:"has_more"`
	IsLoadingMore bool `json:"is_loading_more"`
}

// ViewSnapshot is what the local view API renders.
type ViewSnapshot struct {
	Role            string            `json:"role"`
	Conversations   []Conversation    `json:"conversations"`
	Selection       ViewSelection     `json:"selection"`
	ConversationID  string            `json:"conversation_id,omitempty"`
	Messages        []ChatMessage     `json:"messages"`
	HasDraft        bool              `json:"has_draft"`
	DraftData       map[string]any    `json:"draft_data,omitempty"`
	Loaded          bool              `json:"loaded"`
	Pagination      ViewPagination    `json:"pagination"`
	CurrentBookings map[string]string `json:"current_bookings,omitempty"`
}

// SendViewMessageRequest is the body of POST /api/v1/messages.
type SendViewMessageRequest struct {
	Content   string   `json:"content"`
	ImageURLs []string `json:"image_urls"`
}

// RoleRequest switches the acting role.
type RoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// ViewportRequest reports a layout width change.
type ViewportRequest struct {
	Width int `json:"width" binding:"required,gt=0"`
}

// VisibleItemsRequest reports the oldest rendered message index.
type VisibleItemsRequest struct {
	OldestIndex int `json:"oldest_index" binding:"gte=0"`
}

// ScrollRequest reports scroll metrics of the inverted list.
type ScrollRequest struct {
	Offset         float64 `json:"offset"`
	ContentHeight  float64 `json:"content_height"`
	ViewportHeight float64 `json:"viewport_height"`
	Momentum       bool    `json:"momentum"`
}

// LoadOlderRequest asks for the next older page.
type LoadOlderRequest struct {
	Force bool `json:"force"`
}

// NavigationRequest reports how the page was reached.
type NavigationRequest struct {
	Kind string `json:"kind" binding:"required,oneof=reload push pop"`
}

// LoadResult tells whether a page request was issued.
type LoadResult struct {
	Triggered bool `json:"triggered"`
}
