package chat

import "time"

// Options tunes the conversation view heuristics. Non-positive fields fall
// back to DefaultOptions, except BoundaryTrailing and PaginationCooldown where
// zero is a valid setting and only negative values fall back. Start from
// DefaultOptions when overriding a subset.
type Options struct {
	PageSize                int
	BoundaryTrailing        int
	EndProximity            int
	PaginationCooldown      time.Duration
	LoadingTimeout          time.Duration
	DuplicateWindow         time.Duration
	SteadyScrollThreshold   float64
	MomentumScrollThreshold float64
	WideLayoutMinWidth      int
}

func DefaultOptions() Options {
	return Options{
		PageSize:                20,
		BoundaryTrailing:        2,
		EndProximity:            3,
		PaginationCooldown:      time.Second,
		LoadingTimeout:          5 * time.Second,
		DuplicateWindow:         5 * time.Second,
		SteadyScrollThreshold:   150,
		MomentumScrollThreshold: 200,
		WideLayoutMinWidth:      900,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PageSize <= 0 {
		o.PageSize = def.PageSize
	}
	if o.BoundaryTrailing < 0 {
		o.BoundaryTrailing = def.BoundaryTrailing
	}
	if o.EndProximity <= 0 {
		o.EndProximity = def.EndProximity
	}
	if o.PaginationCooldown < 0 {
		o.PaginationCooldown = def.PaginationCooldown
	}
	if o.LoadingTimeout <= 0 {
		o.LoadingTimeout = def.LoadingTimeout
	}
	if o.DuplicateWindow <= 0 {
		o.DuplicateWindow = def.DuplicateWindow
	}
	if o.SteadyScrollThreshold <= 0 {
		o.SteadyScrollThreshold = def.SteadyScrollThreshold
	}
	if o.MomentumScrollThreshold <= 0 {
		o.MomentumScrollThreshold = def.MomentumScrollThreshold
	}
	if o.WideLayoutMinWidth <= 0 {
		o.WideLayoutMinWidth = def.WideLayoutMinWidth
	}
	return o
}
