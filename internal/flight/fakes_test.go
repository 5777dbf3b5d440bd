package flight

import (
	"context"
	"time"

	"github.com/tiiuae/missionrunner/internal/geo"
	"github.com/tiiuae/missionrunner/internal/mission"
)

type fakeClock struct {
	now     time.Time
	sleeps  []time.Duration
	onSleep func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	if c.onSleep != nil {
		c.onSleep()
	}
	return ctx.Err()
}

// fakeLink is a scripted vehicle. It becomes armable after armableAfter
// checks, confirms arming on the second check after the request and climbs
// climbRate metres per tick once a takeoff was issued.
type fakeLink struct {
	armableAfter int
	armableCalls int
	armRequested bool
	armedCalls   int
	armed        bool
	climbRate    float64
	takeoffAlt   float64

	modes    []string
	position geo.Coordinate
	home     geo.Coordinate
	cursor   int
	cleared  bool
	uploaded []mission.Waypoint
	closed   bool

	err error
}

func (l *fakeLink) tick() {
	if l.takeoffAlt > 0 && l.position.Alt < l.takeoffAlt {
		l.position.Alt += l.climbRate
	}
}

func (l *fakeLink) IsArmable() (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.armableCalls++
	return l.armableCalls > l.armableAfter, nil
}

func (l *fakeLink) SetMode(name string) error {
	if l.err != nil {
		return l.err
	}
	l.modes = append(l.modes, name)
	return nil
}

func (l *fakeLink) SetArmed(armed bool) error {
	if l.err != nil {
		return l.err
	}
	l.armRequested = armed
	if !armed {
		l.armed = false
	}
	return nil
}

func (l *fakeLink) IsArmed() (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.armRequested {
		l.armedCalls++
		l.armed = l.armedCalls > 1
	}
	return l.armed, nil
}

func (l *fakeLink) Takeoff(alt float64) error {
	if l.err != nil {
		return l.err
	}
	l.takeoffAlt = alt
	return nil
}

func (l *fakeLink) Position() (geo.Coordinate, error) {
	if l.err != nil {
		return geo.Coordinate{}, l.err
	}
	return l.position, nil
}

func (l *fakeLink) HomeLocation() (geo.Coordinate, error) {
	if l.err != nil {
		return geo.Coordinate{}, l.err
	}
	return l.home, nil
}

func (l *fakeLink) MissionClear() error {
	if l.err != nil {
		return l.err
	}
	l.cleared = true
	l.uploaded = nil
	return nil
}

func (l *fakeLink) MissionUpload(items []mission.Waypoint) error {
	if l.err != nil {
		return l.err
	}
	l.uploaded = items
	return nil
}

func (l *fakeLink) MissionSetCursor(cursor int) error {
	if l.err != nil {
		return l.err
	}
	l.cursor = cursor
	return nil
}

func (l *fakeLink) MissionCursor() (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	return l.cursor, nil
}

func (l *fakeLink) Close() error {
	if l.err != nil {
		return l.err
	}
	l.closed = true
	return nil
}
