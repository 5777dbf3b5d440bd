package types

// Message types posted on the bus
const (
	MissionProgress = "mission-progress"
	MissionStatus   = "mission-status"
)

// Status is posted when a mission run starts, ends or fails.
type Status struct {
	Phase string `json:"phase"`
	Items int    `json:"items"`
	Error string `json:"error,omitempty"`
}
