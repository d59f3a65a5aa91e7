package passes

import "errors"

var (
	// ErrUnreachable means the orbit never rises above the observer's
	// horizon: its ground footprint never reaches the observer's latitude.
	ErrUnreachable = errors.New("satellite never rises for this observer")

	// ErrGeosynchronous means the satellite hangs at a fixed point in the
	// sky, so there are no rise and set events to find.
	ErrGeosynchronous = errors.New("satellite is geosynchronous")

	// ErrSearchExhausted means a search hit its step, iteration or horizon
	// bound before finding the event.
	ErrSearchExhausted = errors.New("pass search exhausted")
)
