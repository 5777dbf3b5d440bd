package flight

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiiuae/missionrunner/internal/geo"
	"github.com/tiiuae/missionrunner/internal/link"
	"github.com/tiiuae/missionrunner/internal/mission"
	"github.com/tiiuae/missionrunner/internal/poll"
)

var home = geo.Coordinate{Lat: 47.99, Lon: 1.99}

type harness struct {
	ctrl     *Controller
	link     *fakeLink
	clock    *fakeClock
	progress []Progress
}

func newHarness(conf Config) *harness {
	h := &harness{
		link:  &fakeLink{armableAfter: 2, climbRate: 5, position: home, home: home},
		clock: newFakeClock(),
	}
	h.clock.onSleep = h.link.tick
	h.ctrl = New(h.link, conf,
		WithClock(h.clock),
		WithObserver(func(p Progress) { h.progress = append(h.progress, p) }),
	)
	return h
}

func (h *harness) airborne(t *testing.T, alt float64) {
	t.Helper()
	require.NoError(t, h.ctrl.ArmAndTakeoff(context.Background(), alt))
}

func (h *harness) running(t *testing.T) {
	t.Helper()
	h.airborne(t, 20)
	h.ctrl.CreateMission()
	h.ctrl.AddWaypoint(48.0, 2.0, mission.DefaultAlt)
	h.ctrl.AddWaypoint(48.01, 2.01, mission.DefaultAlt)
	require.NoError(t, h.ctrl.StartMission(context.Background()))
}

func TestArmAndTakeoff(t *testing.T) {
	h := newHarness(DefaultConfig())

	require.NoError(t, h.ctrl.ArmAndTakeoff(context.Background(), 20))

	assert.Equal(t, TakingOff, h.ctrl.Phase())
	assert.Equal(t, 20.0, h.ctrl.DefaultAltitude())
	assert.Equal(t, []string{link.ModeGuided}, h.link.modes)
	assert.Equal(t, 20.0, h.link.takeoffAlt)
	assert.True(t, h.link.armed)

	// 2 armable re-checks, 1 armed re-check, 4 climbing ticks
	assert.Len(t, h.clock.sleeps, 7)
	for _, d := range h.clock.sleeps {
		assert.Equal(t, time.Second, d)
	}

	require.Len(t, h.progress, 10)
	for _, p := range h.progress[:3] {
		assert.Equal(t, PrearmCheck, p.Phase)
	}
	for _, p := range h.progress[3:5] {
		assert.Equal(t, Arming, p.Phase)
	}
	altitudes := make([]float64, 0)
	for _, p := range h.progress[5:] {
		assert.Equal(t, TakingOff, p.Phase)
		altitudes = append(altitudes, p.Altitude)
	}
	assert.Equal(t, []float64{0, 5, 10, 15, 20}, altitudes)
}

func TestArmAndTakeoffReachedThreshold(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.link.climbRate = 9.5

	require.NoError(t, h.ctrl.ArmAndTakeoff(context.Background(), 20))

	// 19m is 95% of 20m
	assert.Equal(t, 19.0, h.link.position.Alt)
}

func TestArmAndTakeoffDefaultAltitude(t *testing.T) {
	h := newHarness(DefaultConfig())

	require.NoError(t, h.ctrl.ArmAndTakeoff(context.Background(), mission.DefaultAlt))

	assert.Equal(t, 10.0, h.link.takeoffAlt)
	assert.Equal(t, 10.0, h.ctrl.DefaultAltitude())
}

func TestArmAndTakeoffOnlyOnce(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.airborne(t, 20)

	err := h.ctrl.ArmAndTakeoff(context.Background(), 20)
	assert.ErrorIs(t, err, mission.ErrInvalidState)
	assert.Equal(t, TakingOff, h.ctrl.Phase())
}

func TestArmAndTakeoffLinkError(t *testing.T) {
	h := newHarness(DefaultConfig())
	boom := errors.New("link lost")
	h.link.err = boom

	err := h.ctrl.ArmAndTakeoff(context.Background(), 20)
	assert.Equal(t, boom, errors.Cause(err))
	assert.Equal(t, PrearmCheck, h.ctrl.Phase())
	assert.Empty(t, h.clock.sleeps, "no retry")
}

func TestArmAndTakeoffCancelled(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.link.armableAfter = 1000
	ctx, cancel := context.WithCancel(context.Background())
	h.clock.onSleep = func() {
		if len(h.clock.sleeps) == 3 {
			cancel()
		}
	}

	err := h.ctrl.ArmAndTakeoff(ctx, 20)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, h.clock.sleeps, 3)
}

func TestArmAndTakeoffTimeout(t *testing.T) {
	conf := DefaultConfig()
	conf.WaitTimeout = 3 * time.Second
	h := newHarness(conf)
	h.link.armableAfter = 1000

	err := h.ctrl.ArmAndTakeoff(context.Background(), 20)
	assert.ErrorIs(t, err, poll.ErrTimeout)
}

func TestStartMission(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.link.cursor = 7
	h.running(t)

	assert.Equal(t, MissionRunning, h.ctrl.Phase())
	assert.True(t, h.link.cleared)
	assert.Equal(t, 0, h.link.cursor)
	assert.Equal(t, []string{link.ModeGuided, link.ModeAuto}, h.link.modes)

	require.Len(t, h.link.uploaded, 4)
	assert.Equal(t, mission.CommandTakeoff, h.link.uploaded[0].Command)
	assert.Equal(t, 20.0, h.link.uploaded[0].Target.Alt)
	assert.Equal(t, geo.Coordinate{Lat: 48.0, Lon: 2.0, Alt: 20}, h.link.uploaded[1].Target)
	assert.Equal(t, h.link.uploaded[2], h.link.uploaded[3])
	assert.Equal(t, 4, h.ctrl.MissionLength())

	assert.Equal(t, 5*time.Second, h.clock.sleeps[len(h.clock.sleeps)-1])
}

func TestStartMissionBeforeTakeoff(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.ctrl.CreateMission()
	h.ctrl.AddWaypoint(48.0, 2.0, mission.DefaultAlt)

	err := h.ctrl.StartMission(context.Background())
	assert.ErrorIs(t, err, mission.ErrInvalidState)
	assert.Nil(t, h.link.uploaded)
}

func TestStartMissionWithoutWaypoints(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.airborne(t, 20)
	h.ctrl.CreateMission()

	err := h.ctrl.StartMission(context.Background())
	assert.ErrorIs(t, err, mission.ErrInvalidState)
	assert.Equal(t, TakingOff, h.ctrl.Phase())
	assert.False(t, h.link.cleared)
}

func TestStartMissionUploadError(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.airborne(t, 20)
	h.ctrl.CreateMission()
	h.ctrl.AddWaypoint(48.0, 2.0, mission.DefaultAlt)
	boom := errors.New("upload rejected")
	h.link.err = boom

	err := h.ctrl.StartMission(context.Background())
	assert.Equal(t, boom, errors.Cause(err))
	assert.Equal(t, MissionUpload, h.ctrl.Phase())
}

func TestWaypointDistanceAtCursorZero(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.running(t)

	for _, pos := range []geo.Coordinate{home, {Lat: -33, Lon: 151, Alt: 12}, {}} {
		h.link.position = pos
		d, err := h.ctrl.WaypointDistance()
		require.NoError(t, err)
		assert.Equal(t, 0.0, d)
	}
}

func TestWaypointDistanceTargetsPreviousItem(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.running(t)

	h.link.cursor = 2
	h.link.position = geo.Coordinate{Lat: 48.0, Lon: 2.001, Alt: 20}
	d, err := h.ctrl.WaypointDistance()
	require.NoError(t, err)
	assert.InDelta(t, 111.3195, d, 1e-6)
}

func TestHasFinishedBoundary(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.running(t)
	n := h.ctrl.MissionLength()

	for cursor := 0; cursor < n; cursor++ {
		h.link.cursor = cursor
		finished, err := h.ctrl.HasFinished()
		require.NoError(t, err)
		assert.False(t, finished, "cursor %d", cursor)
	}
	h.link.cursor = n
	finished, err := h.ctrl.HasFinished()
	require.NoError(t, err)
	assert.True(t, finished)
}

func TestTargetDistanceUsesSampledCursor(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.running(t)
	pos := geo.Coordinate{Lat: 48.0, Lon: 2.001, Alt: 20}

	// the link moved on, the sampled cursor still decides the target
	h.link.cursor = 3
	d, err := h.ctrl.TargetDistance(2, pos)
	require.NoError(t, err)
	assert.InDelta(t, 111.3195, d, 1e-6)

	d, err = h.ctrl.TargetDistance(0, pos)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)

	assert.False(t, h.ctrl.FinishedAt(h.ctrl.MissionLength()-1))
	assert.True(t, h.ctrl.FinishedAt(h.ctrl.MissionLength()))
}

func TestHomeDistanceReadsHomeOnQuery(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.link.position = geo.Coordinate{Lat: 47.99, Lon: 1.991}

	d, err := h.ctrl.HomeDistance()
	require.NoError(t, err)
	assert.InDelta(t, 111.3195, d, 1e-6)

	h.link.home = h.link.position
	d, err = h.ctrl.HomeDistance()
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)
}

func TestReturnAndLand(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.running(t)

	assert.ErrorIs(t, h.ctrl.Land(), mission.ErrInvalidState)

	require.NoError(t, h.ctrl.BackToStart())
	assert.Equal(t, Returning, h.ctrl.Phase())
	assert.Equal(t, link.ModeRTL, h.link.modes[len(h.link.modes)-1])
	assert.ErrorIs(t, h.ctrl.BackToStart(), mission.ErrInvalidState)

	require.NoError(t, h.ctrl.Land())
	assert.Equal(t, Landed, h.ctrl.Phase())
	assert.False(t, h.link.armed)
	assert.True(t, h.link.closed)

	assert.ErrorIs(t, h.ctrl.Land(), mission.ErrInvalidState)
}

func TestLandDisarmError(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.running(t)
	require.NoError(t, h.ctrl.BackToStart())
	h.link.err = errors.New("no ack")

	assert.Error(t, h.ctrl.Land())
	assert.Equal(t, Landing, h.ctrl.Phase())
	assert.False(t, h.link.closed)
}

// Takeoff to 20m, waypoints (48.0, 2.0) and (48.01, 2.01). The vehicle flies
// each leg while the cursor advances 0 -> 4, the last step passing the
// completion sentinel.
func TestMissionScenario(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.running(t)
	require.Equal(t, 4, h.ctrl.MissionLength())

	wp1 := geo.Coordinate{Lat: 48.0, Lon: 2.0, Alt: 20}
	wp2 := geo.Coordinate{Lat: 48.01, Lon: 2.01, Alt: 20}

	fly := func(from, to geo.Coordinate, steps int) {
		prev := -1.0
		for i := 0; i <= steps; i++ {
			f := float64(i) / float64(steps)
			h.link.position = geo.Coordinate{
				Lat: from.Lat + (to.Lat-from.Lat)*f,
				Lon: from.Lon + (to.Lon-from.Lon)*f,
				Alt: 20,
			}
			d, err := h.ctrl.WaypointDistance()
			require.NoError(t, err)
			if prev >= 0 {
				assert.Less(t, d, prev, "cursor %d step %d", h.link.cursor, i)
			}
			prev = d

			finished, err := h.ctrl.HasFinished()
			require.NoError(t, err)
			assert.False(t, finished)
		}
		assert.InDelta(t, 0, prev, 1e-6)
	}

	start := geo.Coordinate{Lat: home.Lat, Lon: home.Lon, Alt: 20}
	h.link.position = start

	h.link.cursor = 1
	finished, err := h.ctrl.HasFinished()
	require.NoError(t, err)
	assert.False(t, finished)

	h.link.cursor = 2
	fly(start, wp1, 10)
	h.link.cursor = 3
	fly(wp1, wp2, 10)

	h.link.cursor = 4
	d, err := h.ctrl.WaypointDistance()
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-6)
	finished, err = h.ctrl.HasFinished()
	require.NoError(t, err)
	assert.True(t, finished)
}
