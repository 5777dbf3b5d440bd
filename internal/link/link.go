// Package link connects to the vehicle's flight controller. The mission
// controller only needs the narrow Link capability surface defined here; the
// wire protocol is the implementation's concern.
package link

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/pkg/errors"
	"github.com/tiiuae/missionrunner/internal/geo"
	"github.com/tiiuae/missionrunner/internal/mission"
)

var (
	ErrConnection = errors.New("connection error")
	ErrClosed     = errors.New("link closed")
	ErrNoHome     = errors.New("home position not received yet")
)

// Flight modes understood by SetMode.
const (
	ModeStabilize = "STABILIZE"
	ModeGuided    = "GUIDED"
	ModeAuto      = "AUTO"
	ModeLoiter    = "LOITER"
	ModeRTL       = "RTL"
	ModeLand      = "LAND"
)

// Link is a live connection to a vehicle.
//
// The mission cursor is the index of the next pending command. Index 0 is
// the home position, so while the cursor is n > 0 the vehicle is heading for
// uploaded item n-1.
type Link interface {
	IsArmable() (bool, error)
	SetMode(name string) error
	SetArmed(armed bool) error
	IsArmed() (bool, error)
	Takeoff(alt float64) error
	// Position altitude is relative to home.
	Position() (geo.Coordinate, error)
	HomeLocation() (geo.Coordinate, error)
	MissionClear() error
	MissionUpload(items []mission.Waypoint) error
	MissionSetCursor(cursor int) error
	MissionCursor() (int, error)
	Close() error
}

type Options struct {
	MAVLink MAVLinkConf `yaml:"mavlink"`
	Sim     SimConfig   `yaml:"sim"`
	// SimStep is the wall-clock stepping interval of the simulated vehicle.
	SimStep time.Duration `yaml:"sim_step"`
}

func DefaultOptions() Options {
	return Options{
		MAVLink: DefaultMAVLinkConf(),
		Sim:     DefaultSimConfig(),
		SimStep: 100 * time.Millisecond,
	}
}

// Connect opens a link. Supported addresses:
//
//	sim                    simulated vehicle
//	tcp:host:port          MAVLink over TCP (e.g. Mission Planner, SITL)
//	udp:host:port          MAVLink UDP, listening
//	udpout:host:port       MAVLink UDP, sending
//	serial:/dev/tty:baud   MAVLink over a serial port
func Connect(ctx context.Context, address string, opts Options) (Link, error) {
	if address == "sim" {
		sim := NewSim(opts.Sim)
		go sim.Run(opts.SimStep)
		return sim, nil
	}

	endpoint, err := parseEndpoint(address)
	if err != nil {
		return nil, err
	}

	return dialMAVLink(ctx, endpoint, opts.MAVLink)
}

func parseEndpoint(address string) (gomavlib.EndpointConf, error) {
	parts := strings.SplitN(address, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, errors.Wrapf(ErrConnection, "invalid link address %q", address)
	}

	switch parts[0] {
	case "tcp":
		return gomavlib.EndpointTCPClient{Address: parts[1]}, nil
	case "udp":
		return gomavlib.EndpointUDPServer{Address: parts[1]}, nil
	case "udpout":
		return gomavlib.EndpointUDPClient{Address: parts[1]}, nil
	case "serial":
		i := strings.LastIndex(parts[1], ":")
		if i < 0 {
			return nil, errors.Wrapf(ErrConnection, "serial address %q has no baud rate", address)
		}
		baud, err := strconv.Atoi(parts[1][i+1:])
		if err != nil {
			return nil, errors.Wrapf(ErrConnection, "serial address %q: invalid baud rate", address)
		}
		return gomavlib.EndpointSerial{Device: parts[1][:i], Baud: baud}, nil
	}

	return nil, errors.Wrapf(ErrConnection, "unsupported link scheme %q", parts[0])
}
