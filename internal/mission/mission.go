package mission

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tiiuae/missionrunner/internal/geo"
)

var (
	ErrInvalidState    = errors.New("invalid state")
	ErrIndexOutOfRange = errors.New("index out of range")
)

// DefaultAlt asks for the mission's default cruise altitude.
const DefaultAlt float64 = -1

type Command int

const (
	CommandTakeoff Command = iota
	CommandNavWaypoint
)

func (c Command) String() string {
	switch c {
	case CommandTakeoff:
		return "TAKEOFF"
	case CommandNavWaypoint:
		return "NAV_WAYPOINT"
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// Frame of reference for waypoint altitudes. Only relative to home is used.
type Frame int

const (
	FrameGlobalRelativeAlt Frame = iota
)

type Waypoint struct {
	Command Command
	Frame   Frame
	Target  geo.Coordinate
}

// Mission is the ordered list of commands uploaded to the vehicle.
//
// A freshly built mission starts with a single takeoff item followed by the
// navigation waypoints. Before execution a completion sentinel duplicating the
// last item is appended so that the vehicle's mission cursor can only reach
// Len() once the real last waypoint has been passed.
type Mission struct {
	defaultAltitude float64
	items           []Waypoint
}

func New(defaultAltitude float64) *Mission {
	return &Mission{defaultAltitude: defaultAltitude, items: make([]Waypoint, 0)}
}

func (m *Mission) DefaultAltitude() float64 {
	return m.defaultAltitude
}

// SetDefaultAltitude changes the altitude used by waypoints added later.
// Waypoints already in the mission keep theirs.
func (m *Mission) SetDefaultAltitude(alt float64) {
	m.defaultAltitude = alt
}

func (m *Mission) Reset() {
	m.items = m.items[:0]
}

// AddTakeoff must be the first item after Reset. This is not checked.
func (m *Mission) AddTakeoff(alt float64) {
	m.items = append(m.items, Waypoint{
		Command: CommandTakeoff,
		Frame:   FrameGlobalRelativeAlt,
		Target:  geo.Coordinate{Lat: 0, Lon: 0, Alt: m.resolve(alt)},
	})
}

// AddWaypoint appends a navigation waypoint. A negative alt resolves to the
// default altitude at the time of the call.
func (m *Mission) AddWaypoint(lat, lon, alt float64) {
	m.items = append(m.items, Waypoint{
		Command: CommandNavWaypoint,
		Frame:   FrameGlobalRelativeAlt,
		Target:  geo.Coordinate{Lat: lat, Lon: lon, Alt: m.resolve(alt)},
	})
}

// AppendCompletionSentinel appends an exact copy of the last item.
func (m *Mission) AppendCompletionSentinel() error {
	if len(m.items) < 2 {
		return errors.Wrapf(ErrInvalidState, "completion sentinel needs a waypoint, mission has %d items", len(m.items))
	}
	m.items = append(m.items, m.items[len(m.items)-1])
	return nil
}

func (m *Mission) Len() int {
	return len(m.items)
}

func (m *Mission) ItemAt(index int) (Waypoint, error) {
	if index < 0 || index >= len(m.items) {
		return Waypoint{}, errors.Wrapf(ErrIndexOutOfRange, "item %d of %d", index, len(m.items))
	}
	return m.items[index], nil
}

// Items returns a copy of the mission items in upload order.
func (m *Mission) Items() []Waypoint {
	out := make([]Waypoint, len(m.items))
	copy(out, m.items)
	return out
}

// Legs returns consecutive pairs of navigation waypoints.
func (m *Mission) Legs() [][2]geo.Coordinate {
	legs := make([][2]geo.Coordinate, 0)
	var prev *Waypoint
	for i := range m.items {
		wp := &m.items[i]
		if wp.Command != CommandNavWaypoint {
			continue
		}
		if prev != nil && prev.Target != wp.Target {
			legs = append(legs, [2]geo.Coordinate{prev.Target, wp.Target})
		}
		prev = wp
	}
	return legs
}

func (m *Mission) resolve(alt float64) float64 {
	if alt < 0 {
		return m.defaultAltitude
	}
	return alt
}
