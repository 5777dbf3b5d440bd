package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tiiuae/missionrunner/internal/config"
	"github.com/tiiuae/missionrunner/internal/flight"
	"github.com/tiiuae/missionrunner/internal/link"
	"github.com/tiiuae/missionrunner/internal/logging"
	"github.com/tiiuae/missionrunner/internal/mission"
	"github.com/tiiuae/missionrunner/internal/publish"
	"github.com/tiiuae/missionrunner/internal/runner"
	"github.com/tiiuae/missionrunner/internal/telemetry"
	"github.com/tiiuae/missionrunner/internal/types"
)

var (
	deafultFlagSet = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flags          = config.RegisterFlags(deafultFlagSet)
)

func main() {
	if err := deafultFlagSet.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if err := run(); err != nil {
		log.Errorf("Mission aborted: %v", err)
		os.Exit(1)
	}
}

func run() error {
	conf, err := flags.Load(deafultFlagSet)
	if err != nil {
		return err
	}
	logFile, err := logging.Configure(log.StandardLogger(), conf.Log)
	if err != nil {
		return err
	}
	defer logFile.Close()

	plan, err := mission.LoadPlan(conf.PlanDir, conf.DeviceID)
	if err != nil {
		return err
	}
	log.WithField("waypoints", len(plan.Waypoints)).Info("Flight plan loaded")

	// attach sigint & sigterm listeners
	terminationSignals := make(chan os.Signal, 1)
	signal.Notify(terminationSignals, syscall.SIGINT, syscall.SIGTERM)

	// quitFunc will be called when process is terminated
	ctx, quitFunc := context.WithCancel(context.Background())
	defer quitFunc()

	// wait group will make sure all goroutines have time to clean up
	var wg sync.WaitGroup

	handlers := []types.MessageHandler{types.NewLogger(log.WithField("device", conf.DeviceID))}
	if conf.MQTT.Broker != "" {
		mqttClient, err := publish.Connect(ctx, conf.DeviceID, conf.MQTT)
		if err != nil {
			return err
		}
		defer mqttClient.Disconnect(1000)
		handlers = append(handlers, publish.New(mqttClient, conf.DeviceID))
	}

	messagebus := make(chan types.Message, 100)
	bus := types.NewMessageBus(messagebus, handlers...)
	go bus.Run(ctx, &wg)

	post := func(messageType string, payload interface{}) {
		bus.Post(types.CreateMessage(messageType, conf.DeviceID, conf.DeviceID, payload))
	}

	log.WithField("link", conf.Link).Info("Connecting to vehicle")
	vehicle, err := link.Connect(ctx, conf.Link, conf.Vehicle)
	if err != nil {
		return err
	}

	poller := telemetry.New(conf.Telemetry,
		telemetry.WithSink(func(p flight.Progress) { post(types.MissionProgress, p) }))
	ctrl := flight.New(vehicle, conf.Flight,
		flight.WithObserver(poller.Observe),
		flight.WithLogger(log.WithField("device", conf.DeviceID)))
	r := runner.New(ctrl, poller,
		runner.WithStatus(func(s types.Status) { post(types.MissionStatus, s) }))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer quitFunc()
		return r.Run(gctx, plan)
	})
	g.Go(func() error {
		// wait for termination or the end of the mission
		select {
		case <-terminationSignals:
			log.Printf("Shutting down..")
			quitFunc()
		case <-ctx.Done():
		}
		return nil
	})
	runErr := g.Wait()

	if ctrl.Phase() != flight.Landed {
		log.WithField("phase", ctrl.Phase()).Warn("Vehicle not landed, releasing link")
		vehicle.Close()
	}

	// wait until goroutines have done their cleanup
	log.Printf("Waiting for routines to finish...")
	wg.Wait()
	log.Printf("Signing off - BYE")
	return runErr
}
