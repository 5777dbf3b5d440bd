package link

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tiiuae/missionrunner/internal/geo"
	"github.com/tiiuae/missionrunner/internal/mission"
)

// SimConfig describes the simulated vehicle. Speeds are m/s.
type SimConfig struct {
	Home         geo.Coordinate `yaml:"home"`
	BootTime     time.Duration  `yaml:"boot_time"`
	ClimbRate    float64        `yaml:"climb_rate"`
	DescentRate  float64        `yaml:"descent_rate"`
	Speed        float64        `yaml:"speed"`
	AcceptRadius float64        `yaml:"accept_radius"`
}

func DefaultSimConfig() SimConfig {
	return SimConfig{
		Home:         geo.Coordinate{Lat: 48.0, Lon: 2.0},
		BootTime:     2 * time.Second,
		ClimbRate:    2.5,
		DescentRate:  1.5,
		Speed:        10,
		AcceptRadius: 2,
	}
}

// Sim is an in-process vehicle with the mission semantics of an ArduCopter
// autopilot. It moves only when stepped, either by Step or by Run.
type Sim struct {
	mu           sync.Mutex
	conf         SimConfig
	elapsed      time.Duration
	mode         string
	armed        bool
	armRequested bool
	takeoffAlt   float64
	position     geo.Coordinate
	items        []mission.Waypoint
	cursor       int
	closed       bool
	stop         chan struct{}
}

func NewSim(conf SimConfig) *Sim {
	home := conf.Home
	home.Alt = 0
	return &Sim{
		conf:     conf,
		mode:     ModeStabilize,
		position: home,
		stop:     make(chan struct{}),
	}
}

// Run steps the simulation in real time until Close.
func (s *Sim) Run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Step(interval)
		}
	}
}

// Step advances the simulation by dt.
func (s *Sim) Step(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.elapsed += dt
	if s.armRequested && s.armable() {
		s.armed = true
		s.armRequested = false
	}
	if !s.armed {
		return
	}

	secs := dt.Seconds()
	switch s.mode {
	case ModeGuided:
		s.climbTo(s.takeoffAlt, secs)
	case ModeAuto:
		s.stepMission(secs)
	case ModeRTL:
		home := s.conf.Home
		if geo.Distance(s.position, home) > s.conf.AcceptRadius {
			s.moveTowards(home, secs)
			return
		}
		s.descend(secs)
	case ModeLand:
		s.descend(secs)
	}
}

func (s *Sim) stepMission(secs float64) {
	if len(s.items) == 0 {
		return
	}
	if s.cursor == 0 {
		s.cursor = 1
	}
	target := s.items[s.cursor-1]
	switch target.Command {
	case mission.CommandTakeoff:
		s.climbTo(target.Target.Alt, secs)
		if s.position.Alt >= target.Target.Alt {
			s.advance()
		}
	default:
		s.moveTowards(target.Target, secs)
		s.climbTo(target.Target.Alt, secs)
		if geo.Distance(s.position, target.Target) <= s.conf.AcceptRadius {
			s.advance()
		}
	}
}

// advance moves to the next item. The vehicle holds at the last one.
func (s *Sim) advance() {
	if s.cursor < len(s.items) {
		s.cursor++
	}
}

func (s *Sim) moveTowards(target geo.Coordinate, secs float64) {
	d := geo.Distance(s.position, target)
	step := s.conf.Speed * secs
	if d <= step {
		s.position.Lat = target.Lat
		s.position.Lon = target.Lon
		return
	}
	frac := step / d
	s.position.Lat += (target.Lat - s.position.Lat) * frac
	s.position.Lon += (target.Lon - s.position.Lon) * frac
}

func (s *Sim) climbTo(alt float64, secs float64) {
	if s.position.Alt < alt {
		s.position.Alt += s.conf.ClimbRate * secs
		if s.position.Alt > alt {
			s.position.Alt = alt
		}
	} else if s.position.Alt > alt {
		s.position.Alt -= s.conf.DescentRate * secs
		if s.position.Alt < alt {
			s.position.Alt = alt
		}
	}
}

// descend lands and disarms on touchdown.
func (s *Sim) descend(secs float64) {
	s.position.Alt -= s.conf.DescentRate * secs
	if s.position.Alt <= 0 {
		s.position.Alt = 0
		s.armed = false
	}
}

func (s *Sim) armable() bool {
	return s.elapsed >= s.conf.BootTime
}

func (s *Sim) IsArmable() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	return s.armable(), nil
}

func (s *Sim) SetMode(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := copterModes[name]; !ok {
		return errors.Errorf("unknown flight mode %q", name)
	}
	s.mode = name
	return nil
}

func (s *Sim) SetArmed(armed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if armed {
		s.armRequested = true
		return nil
	}
	s.armRequested = false
	s.armed = false
	return nil
}

func (s *Sim) IsArmed() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	return s.armed, nil
}

func (s *Sim) Takeoff(alt float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.armed || s.mode != ModeGuided {
		return errors.Errorf("takeoff rejected: armed=%v mode=%s", s.armed, s.mode)
	}
	s.takeoffAlt = alt
	return nil
}

func (s *Sim) Position() (geo.Coordinate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return geo.Coordinate{}, ErrClosed
	}
	return s.position, nil
}

func (s *Sim) HomeLocation() (geo.Coordinate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return geo.Coordinate{}, ErrClosed
	}
	home := s.conf.Home
	home.Alt = 0
	return home, nil
}

func (s *Sim) MissionClear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.items = nil
	s.cursor = 0
	return nil
}

func (s *Sim) MissionUpload(items []mission.Waypoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.items = make([]mission.Waypoint, len(items))
	copy(s.items, items)
	return nil
}

func (s *Sim) MissionSetCursor(cursor int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if cursor < 0 || cursor > len(s.items) {
		return errors.Errorf("mission cursor %d out of range [0, %d]", cursor, len(s.items))
	}
	s.cursor = cursor
	return nil
}

func (s *Sim) MissionCursor() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.cursor, nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	close(s.stop)
	return nil
}
