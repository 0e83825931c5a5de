package action

import "fmt"

// Timing is the point in a coupling timestep at which an action fires.
// Fixed at construction, immutable thereafter.
type Timing int

const (
	// AtInitialization fires once, before the first timestep.
	AtInitialization Timing = iota
	// BeforeDataSend fires before coupling data is sent.
	BeforeDataSend
	// AfterDataReceive fires after coupling data has been received.
	AfterDataReceive
	// OnTimestepComplete fires at the end of a completed timestep.
	OnTimestepComplete
)

func (t Timing) String() string {
	switch t {
	case AtInitialization:
		return "at-initialization"
	case BeforeDataSend:
		return "before-data-send"
	case AfterDataReceive:
		return "after-data-receive"
	case OnTimestepComplete:
		return "on-timestep-complete"
	default:
		return "unknown"
	}
}

// ParseTiming converts a configuration string into a Timing.
func ParseTiming(s string) (Timing, error) {
	switch s {
	case "at-initialization":
		return AtInitialization, nil
	case "before-data-send":
		return BeforeDataSend, nil
	case "after-data-receive":
		return AfterDataReceive, nil
	case "on-timestep-complete":
		return OnTimestepComplete, nil
	default:
		return 0, fmt.Errorf("unknown timing %q", s)
	}
}
