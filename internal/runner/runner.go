// Package runner flies a flight plan from takeoff to touchdown.
package runner

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tiiuae/missionrunner/internal/flight"
	"github.com/tiiuae/missionrunner/internal/mission"
	"github.com/tiiuae/missionrunner/internal/telemetry"
	"github.com/tiiuae/missionrunner/internal/types"
)

type StatusFn = func(s types.Status)

type Runner struct {
	ctrl   *flight.Controller
	poller *telemetry.Poller
	status StatusFn
	log    *logrus.Entry
}

type Option func(r *Runner)

// WithStatus is called when the mission starts, lands or fails.
func WithStatus(fn StatusFn) Option {
	return func(r *Runner) {
		r.status = fn
	}
}

func WithLogger(entry *logrus.Entry) Option {
	return func(r *Runner) {
		r.log = entry
	}
}

func New(ctrl *flight.Controller, poller *telemetry.Poller, opts ...Option) *Runner {
	r := &Runner{
		ctrl:   ctrl,
		poller: poller,
		status: func(types.Status) {},
		log:    logrus.WithField("component", "runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run takes off, flies the plan, returns to launch and lands. The
// controller is consumed.
func (r *Runner) Run(ctx context.Context, plan *mission.Plan) error {
	err := r.run(ctx, plan)
	if err != nil {
		r.log.WithField("phase", r.ctrl.Phase()).Errorf("Mission failed: %v", err)
		r.status(types.Status{
			Phase: r.ctrl.Phase().String(),
			Items: r.ctrl.MissionLength(),
			Error: err.Error(),
		})
	}
	return err
}

func (r *Runner) run(ctx context.Context, plan *mission.Plan) error {
	alt := plan.TakeoffAltitude
	if alt == 0 {
		alt = mission.DefaultAlt
	}
	if err := r.ctrl.ArmAndTakeoff(ctx, alt); err != nil {
		return errors.WithMessage(err, "arm and takeoff")
	}

	r.ctrl.CreateMission()
	for _, wp := range plan.Waypoints {
		r.ctrl.AddWaypoint(wp.Lat, wp.Lon, wp.Altitude())
	}
	r.log.WithField("waypoints", len(plan.Waypoints)).Info("Uploading mission...")
	if err := r.ctrl.StartMission(ctx); err != nil {
		return errors.WithMessage(err, "start mission")
	}
	r.status(types.Status{Phase: r.ctrl.Phase().String(), Items: r.ctrl.MissionLength()})

	if err := r.poller.WaitMissionFinished(ctx, r.ctrl); err != nil {
		return errors.WithMessage(err, "mission")
	}

	if err := r.ctrl.BackToStart(); err != nil {
		return err
	}
	if err := r.poller.WaitLanded(ctx, r.ctrl); err != nil {
		return err
	}

	if err := r.ctrl.Land(); err != nil {
		return err
	}
	r.log.Info("Drone landed")
	r.status(types.Status{Phase: r.ctrl.Phase().String(), Items: r.ctrl.MissionLength()})
	return nil
}
