package flight

import "fmt"

// Phase of a mission run. Phases only move forward.
type Phase int

const (
	Disconnected Phase = iota
	PrearmCheck
	Arming
	TakingOff
	MissionUpload
	MissionRunning
	Returning
	Landing
	Landed
)

var phaseNames = [...]string{
	Disconnected:   "DISCONNECTED",
	PrearmCheck:    "PREARM_CHECK",
	Arming:         "ARMING",
	TakingOff:      "TAKING_OFF",
	MissionUpload:  "MISSION_UPLOAD",
	MissionRunning: "MISSION_RUNNING",
	Returning:      "RETURNING",
	Landing:        "LANDING",
	Landed:         "LANDED",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
