package propagation

import (
	"errors"
	"fmt"
)

// ErrDecayed is matched by every *DecayedError.
var ErrDecayed = errors.New("satellite decayed")

// DecayedError reports that the model no longer describes an orbit at the
// requested time. The Position returned alongside it is flagged Decayed
// and must not be used for pointing.
type DecayedError struct {
	Tsince float64 // minutes since epoch
	Radius float64 // km, zero when the failure happened before the radius was known
	Reason string
}

func (e *DecayedError) Error() string {
	if e.Radius > 0 {
		return fmt.Sprintf("satellite decayed at tsince %.2f min: %s (radius %.1f km)", e.Tsince, e.Reason, e.Radius)
	}
	return fmt.Sprintf("satellite decayed at tsince %.2f min: %s", e.Tsince, e.Reason)
}

// Is makes errors.Is(err, ErrDecayed) hold.
func (e *DecayedError) Is(target error) bool {
	return target == ErrDecayed
}
