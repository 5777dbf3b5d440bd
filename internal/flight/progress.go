package flight

import "time"

// Target names what Progress.Distance is measured to.
type Target string

const (
	TargetNone     Target = ""
	TargetWaypoint Target = "waypoint"
	TargetHome     Target = "home"
)

// Progress is one observation taken on a poll tick.
type Progress struct {
	Phase     Phase     `json:"phase"`
	Cursor    int       `json:"cursor"`
	Target    Target    `json:"target,omitempty"`
	Distance  float64   `json:"distance"`
	Altitude  float64   `json:"altitude"`
	Timestamp time.Time `json:"timestamp"`
}

type ObserverFn = func(p Progress)
