// Package telemetry samples mission progress once per poll interval until a
// phase-ending condition holds. Every sample goes through Observe, which is
// also the observer handed to the flight controller.
package telemetry

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tiiuae/missionrunner/internal/flight"
	"github.com/tiiuae/missionrunner/internal/geo"
	"github.com/tiiuae/missionrunner/internal/link"
	"github.com/tiiuae/missionrunner/internal/poll"
)

// Vehicle is the part of the flight controller the poller samples.
type Vehicle interface {
	Phase() flight.Phase
	Cursor() (int, error)
	Position() (geo.Coordinate, error)
	Home() (geo.Coordinate, error)
	TargetDistance(cursor int, pos geo.Coordinate) (float64, error)
	FinishedAt(cursor int) bool
	Waiter() poll.Waiter
	Clock() poll.Clock
}

type Config struct {
	// LandedAltitude in metres at or below which the vehicle is on the ground.
	LandedAltitude float64 `yaml:"landed_altitude"`
}

func DefaultConfig() Config {
	return Config{LandedAltitude: 0.1}
}

type Option func(p *Poller)

// WithSink forwards every observation, typically onto the message bus.
func WithSink(fn flight.ObserverFn) Option {
	return func(p *Poller) {
		p.sink = fn
	}
}

func WithLogger(entry *logrus.Entry) Option {
	return func(p *Poller) {
		p.log = entry
	}
}

type Poller struct {
	conf    Config
	sink    flight.ObserverFn
	log     *logrus.Entry
	samples int
}

func New(conf Config, opts ...Option) *Poller {
	p := &Poller{
		conf: conf,
		log:  logrus.WithField("component", "telemetry"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Observe records one progress sample.
func (p *Poller) Observe(pr flight.Progress) {
	p.samples++
	p.log.WithFields(logrus.Fields{
		"phase":    pr.Phase,
		"cursor":   pr.Cursor,
		"distance": pr.Distance,
		"altitude": pr.Altitude,
	}).Debug("Progress")
	if p.sink != nil {
		p.sink(pr)
	}
}

// Samples is the number of observations so far.
func (p *Poller) Samples() int {
	return p.samples
}

// WaitMissionFinished samples the distance to the targeted waypoint until
// the vehicle passed the last mission item. The cursor is read once per
// tick so the published sample and the finish decision agree.
func (p *Poller) WaitMissionFinished(ctx context.Context, v Vehicle) error {
	return v.Waiter().Until(ctx, func() (bool, error) {
		cursor, err := v.Cursor()
		if err != nil {
			return false, err
		}
		pos, err := v.Position()
		if err != nil {
			return false, err
		}
		dist, err := v.TargetDistance(cursor, pos)
		if err != nil {
			return false, err
		}
		p.Observe(flight.Progress{
			Phase:     v.Phase(),
			Cursor:    cursor,
			Target:    flight.TargetWaypoint,
			Distance:  dist,
			Altitude:  pos.Alt,
			Timestamp: v.Clock().Now(),
		})
		return v.FinishedAt(cursor), nil
	})
}

// WaitLanded samples the distance to home until the vehicle is down to
// LandedAltitude. Ticks before the vehicle reported home only check the
// altitude.
func (p *Poller) WaitLanded(ctx context.Context, v Vehicle) error {
	err := v.Waiter().Until(ctx, func() (bool, error) {
		pos, err := v.Position()
		if err != nil {
			return false, err
		}
		home, err := v.Home()
		switch {
		case errors.Is(err, link.ErrNoHome):
			p.log.WithField("altitude", pos.Alt).Debug("Home position not known yet")
		case err != nil:
			return false, err
		default:
			p.Observe(flight.Progress{
				Phase:     v.Phase(),
				Target:    flight.TargetHome,
				Distance:  geo.Distance(pos, home),
				Altitude:  pos.Alt,
				Timestamp: v.Clock().Now(),
			})
		}
		return pos.Alt <= p.conf.LandedAltitude, nil
	})
	return errors.WithMessage(err, "waiting for landing")
}
