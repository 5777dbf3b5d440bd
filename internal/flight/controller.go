// Package flight drives a vehicle through a waypoint mission: arm, climb,
// fly the uploaded mission, return to launch and land.
//
// A Controller is owned by a single goroutine. All waits poll the link at
// Config.PollInterval and block until their condition holds, the context is
// cancelled or, when Config.WaitTimeout is set, the timeout elapses.
package flight

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tiiuae/missionrunner/internal/geo"
	"github.com/tiiuae/missionrunner/internal/link"
	"github.com/tiiuae/missionrunner/internal/mission"
	"github.com/tiiuae/missionrunner/internal/poll"
)

type Config struct {
	DefaultAltitude float64 `yaml:"default_altitude"`
	// AltitudeReached is the fraction of the takeoff altitude that counts
	// as reached.
	AltitudeReached float64       `yaml:"altitude_reached"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	// SettleDelay follows the switch to the auto mode.
	SettleDelay time.Duration `yaml:"settle_delay"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`
	GuidedMode  string        `yaml:"guided_mode"`
	AutoMode    string        `yaml:"auto_mode"`
	ReturnMode  string        `yaml:"return_mode"`
	// Legs whose planar distance is off the great circle distance by more
	// than this fraction are logged when the mission starts.
	MaxApproximationError float64 `yaml:"max_approximation_error"`
}

func DefaultConfig() Config {
	return Config{
		DefaultAltitude:       10,
		AltitudeReached:       0.95,
		PollInterval:          time.Second,
		SettleDelay:           5 * time.Second,
		GuidedMode:            link.ModeGuided,
		AutoMode:              link.ModeAuto,
		ReturnMode:            link.ModeRTL,
		MaxApproximationError: 0.25,
	}
}

type Option func(c *Controller)

func WithClock(clock poll.Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// WithObserver receives a Progress for every poll tick of the controller's
// own waits.
func WithObserver(fn ObserverFn) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

func WithLogger(entry *logrus.Entry) Option {
	return func(c *Controller) {
		c.log = entry
	}
}

type Controller struct {
	link     link.Link
	conf     Config
	clock    poll.Clock
	observer ObserverFn
	log      *logrus.Entry
	phase    Phase
	mission  *mission.Mission
}

func New(l link.Link, conf Config, opts ...Option) *Controller {
	c := &Controller{
		link:    l,
		conf:    conf,
		clock:   poll.RealClock,
		log:     logrus.WithField("component", "flight"),
		phase:   Disconnected,
		mission: mission.New(conf.DefaultAltitude),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Phase() Phase {
	return c.phase
}

func (c *Controller) DefaultAltitude() float64 {
	return c.mission.DefaultAltitude()
}

func (c *Controller) MissionLength() int {
	return c.mission.Len()
}

func (c *Controller) Clock() poll.Clock {
	return c.clock
}

// Waiter returns a waiter with the controller's poll settings.
func (c *Controller) Waiter() poll.Waiter {
	return poll.Waiter{
		Clock:    c.clock,
		Interval: c.conf.PollInterval,
		Timeout:  c.conf.WaitTimeout,
	}
}

func (c *Controller) setPhase(p Phase) {
	c.log.WithFields(logrus.Fields{"from": c.phase, "to": p}).Debug("Phase change")
	c.phase = p
}

func (c *Controller) require(op string, p Phase) error {
	if c.phase != p {
		return errors.Wrapf(mission.ErrInvalidState, "%s in phase %s, expected %s", op, c.phase, p)
	}
	return nil
}

func (c *Controller) emit(p Progress) {
	if c.observer == nil {
		return
	}
	p.Phase = c.phase
	p.Timestamp = c.clock.Now()
	c.observer(p)
}

// ArmAndTakeoff arms the vehicle and climbs to alt metres above home.
// A negative alt keeps the current default altitude; otherwise alt becomes
// the new default. It returns once the vehicle is close to alt and leaves
// the controller in TakingOff until StartMission.
func (c *Controller) ArmAndTakeoff(ctx context.Context, alt float64) error {
	if err := c.require("arm and takeoff", Disconnected); err != nil {
		return err
	}
	if alt < 0 {
		alt = c.mission.DefaultAltitude()
	}
	c.mission.SetDefaultAltitude(alt)
	w := c.Waiter()

	c.setPhase(PrearmCheck)
	c.log.Info("Basic pre-arm checks")
	err := w.Until(ctx, func() (bool, error) {
		armable, err := c.link.IsArmable()
		if err != nil {
			return false, errors.WithMessage(err, "armable check")
		}
		c.emit(Progress{})
		if !armable {
			c.log.Info("Waiting for vehicle to initialise...")
		}
		return armable, nil
	})
	if err != nil {
		return err
	}

	c.setPhase(Arming)
	c.log.Info("Arming motors")
	if err := c.link.SetMode(c.conf.GuidedMode); err != nil {
		return errors.WithMessagef(err, "set mode %s", c.conf.GuidedMode)
	}
	if err := c.link.SetArmed(true); err != nil {
		return errors.WithMessage(err, "arm")
	}
	err = w.Until(ctx, func() (bool, error) {
		armed, err := c.link.IsArmed()
		if err != nil {
			return false, errors.WithMessage(err, "armed check")
		}
		c.emit(Progress{})
		if !armed {
			c.log.Info("Waiting for arming...")
		}
		return armed, nil
	})
	if err != nil {
		return err
	}

	c.setPhase(TakingOff)
	c.log.WithField("altitude", alt).Info("Taking off!")
	if err := c.link.Takeoff(alt); err != nil {
		return errors.WithMessagef(err, "takeoff to %.1fm", alt)
	}
	reached := alt * c.conf.AltitudeReached
	err = w.Until(ctx, func() (bool, error) {
		pos, err := c.link.Position()
		if err != nil {
			return false, errors.WithMessage(err, "position")
		}
		c.emit(Progress{Altitude: pos.Alt})
		c.log.Debugf("Altitude: %.2f", pos.Alt)
		return pos.Alt >= reached, nil
	})
	if err != nil {
		return err
	}
	c.log.Info("Reached target altitude")
	return nil
}

// CreateMission starts a new mission with a takeoff item at the default
// altitude.
func (c *Controller) CreateMission() {
	c.mission.Reset()
	c.mission.AddTakeoff(c.mission.DefaultAltitude())
}

// AddWaypoint appends a waypoint. Use mission.DefaultAlt for the default
// altitude. Call CreateMission first.
func (c *Controller) AddWaypoint(lat, lon, alt float64) {
	c.mission.AddWaypoint(lat, lon, alt)
}

// StartMission uploads the mission and switches the vehicle to the auto
// mode. It returns after the settle delay.
func (c *Controller) StartMission(ctx context.Context) error {
	if err := c.require("start mission", TakingOff); err != nil {
		return err
	}
	if err := c.mission.AppendCompletionSentinel(); err != nil {
		return err
	}

	c.setPhase(MissionUpload)
	c.checkLegs()
	if err := c.link.MissionClear(); err != nil {
		return errors.WithMessage(err, "mission clear")
	}
	if err := c.link.MissionUpload(c.mission.Items()); err != nil {
		return errors.WithMessage(err, "mission upload")
	}
	if err := c.link.MissionSetCursor(0); err != nil {
		return errors.WithMessage(err, "mission cursor reset")
	}
	if err := c.link.SetMode(c.conf.AutoMode); err != nil {
		return errors.WithMessagef(err, "set mode %s", c.conf.AutoMode)
	}

	c.setPhase(MissionRunning)
	c.log.WithField("items", c.mission.Len()).Info("Mission started")
	return c.Waiter().Sleep(ctx, c.conf.SettleDelay)
}

func (c *Controller) checkLegs() {
	for _, leg := range c.mission.Legs() {
		e := geo.ApproximationError(leg[0], leg[1])
		if e > c.conf.MaxApproximationError {
			c.log.WithFields(logrus.Fields{
				"from":  leg[0],
				"to":    leg[1],
				"error": e,
			}).Warn("Planar distance is inaccurate for this leg")
		}
	}
}

func (c *Controller) Cursor() (int, error) {
	cursor, err := c.link.MissionCursor()
	if err != nil {
		return 0, errors.WithMessage(err, "mission cursor")
	}
	return cursor, nil
}

func (c *Controller) Position() (geo.Coordinate, error) {
	pos, err := c.link.Position()
	if err != nil {
		return geo.Coordinate{}, errors.WithMessage(err, "position")
	}
	return pos, nil
}

// WaypointDistance is the distance in metres to the targeted mission item,
// or 0 while the cursor is still on the home position.
func (c *Controller) WaypointDistance() (float64, error) {
	cursor, err := c.Cursor()
	if err != nil {
		return 0, err
	}
	pos, err := c.Position()
	if err != nil {
		return 0, err
	}
	return c.TargetDistance(cursor, pos)
}

// TargetDistance is WaypointDistance for an already sampled cursor and
// position.
func (c *Controller) TargetDistance(cursor int, pos geo.Coordinate) (float64, error) {
	if cursor == 0 {
		return 0, nil
	}
	target, err := c.mission.ItemAt(cursor - 1)
	if err != nil {
		return 0, err
	}
	return geo.Distance(pos, target.Target), nil
}

// HomeDistance is the distance in metres to the home location reported by
// the vehicle.
func (c *Controller) HomeDistance() (float64, error) {
	home, err := c.Home()
	if err != nil {
		return 0, err
	}
	pos, err := c.Position()
	if err != nil {
		return 0, err
	}
	return geo.Distance(pos, home), nil
}

// Home is read from the vehicle on every call. It fails with
// link.ErrNoHome until the vehicle reported it.
func (c *Controller) Home() (geo.Coordinate, error) {
	home, err := c.link.HomeLocation()
	if err != nil {
		return geo.Coordinate{}, errors.WithMessage(err, "home location")
	}
	return home, nil
}

// HasFinished reports whether the vehicle passed the completion sentinel.
func (c *Controller) HasFinished() (bool, error) {
	cursor, err := c.Cursor()
	if err != nil {
		return false, err
	}
	return c.FinishedAt(cursor), nil
}

func (c *Controller) FinishedAt(cursor int) bool {
	return cursor == c.mission.Len()
}

func (c *Controller) BackToStart() error {
	if err := c.require("back to start", MissionRunning); err != nil {
		return err
	}
	if err := c.link.SetMode(c.conf.ReturnMode); err != nil {
		return errors.WithMessagef(err, "set mode %s", c.conf.ReturnMode)
	}
	c.setPhase(Returning)
	c.log.Info("Returning to launch")
	return nil
}

// Land disarms the vehicle and closes the link. The controller cannot be
// used afterwards.
func (c *Controller) Land() error {
	if err := c.require("land", Returning); err != nil {
		return err
	}
	c.setPhase(Landing)
	if err := c.link.SetArmed(false); err != nil {
		return errors.WithMessage(err, "disarm")
	}
	if err := c.link.Close(); err != nil {
		return errors.WithMessage(err, "close link")
	}
	c.setPhase(Landed)
	c.log.Info("Landed")
	return nil
}
