// Package config loads the missionrunner configuration from a yaml file and
// applies command line overrides on top of it.
package config

import (
	"flag"
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/tiiuae/missionrunner/internal/flight"
	"github.com/tiiuae/missionrunner/internal/link"
	"github.com/tiiuae/missionrunner/internal/logging"
	"github.com/tiiuae/missionrunner/internal/publish"
	"github.com/tiiuae/missionrunner/internal/telemetry"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DeviceID  string           `yaml:"device_id"`
	Link      string           `yaml:"link"`
	PlanDir   string           `yaml:"plan_dir"`
	Vehicle   link.Options     `yaml:"vehicle"`
	Flight    flight.Config    `yaml:"flight"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	MQTT      publish.Config   `yaml:"mqtt"`
	Log       logging.Config   `yaml:"log"`
}

func Default() Config {
	return Config{
		DeviceID:  "drone",
		Link:      "tcp:127.0.0.1:5760",
		PlanDir:   ".",
		Vehicle:   link.DefaultOptions(),
		Flight:    flight.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
		MQTT:      publish.DefaultConfig(),
		Log:       logging.DefaultConfig(),
	}
}

// Load reads filename over the defaults. An empty filename yields the
// defaults.
func Load(filename string) (Config, error) {
	conf := Default()
	if filename == "" {
		return conf, nil
	}

	text, err := ioutil.ReadFile(filename)
	if err != nil {
		return conf, errors.WithMessage(err, "Could not read config")
	}
	err = yaml.Unmarshal(text, &conf)
	if err != nil {
		return conf, errors.WithMessagef(err, "Could not parse config %s", filename)
	}

	return conf, nil
}

func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return errors.New("device_id is required")
	}
	if c.Link == "" {
		return errors.New("link is required")
	}
	if c.Flight.PollInterval <= 0 {
		return errors.Errorf("flight.poll_interval must be positive, got %v", c.Flight.PollInterval)
	}
	if c.Flight.AltitudeReached <= 0 || c.Flight.AltitudeReached > 1 {
		return errors.Errorf("flight.altitude_reached must be in (0, 1], got %v", c.Flight.AltitudeReached)
	}
	if c.Flight.DefaultAltitude < 0 {
		return errors.Errorf("flight.default_altitude must not be negative, got %v", c.Flight.DefaultAltitude)
	}
	if c.Flight.WaitTimeout < 0 {
		return errors.Errorf("flight.wait_timeout must not be negative, got %v", c.Flight.WaitTimeout)
	}
	return nil
}

// Flags are the command line overrides. Only flags given on the command
// line replace file values.
type Flags struct {
	configFile *string
	deviceID   *string
	link       *string
	mqttBroker *string
	privateKey *string
	planDir    *string
	altitude   *float64
	logLevel   *string
	logFile    *string
}

func RegisterFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		configFile: fs.String("config", "", "Path to the yaml configuration"),
		deviceID:   fs.String("device_id", "", "The provisioned device id"),
		link:       fs.String("link", "", "Vehicle link: sim, tcp:host:port, udp:host:port, udpout:host:port or serial:/dev/tty:baud"),
		mqttBroker: fs.String("mqtt_broker", "", "MQTT broker protocol, address and port"),
		privateKey: fs.String("private_key", "", "The private key for the MQTT authentication"),
		planDir:    fs.String("plan_dir", "", "Directory of the flight plan files"),
		altitude:   fs.Float64("altitude", 0, "Default cruise altitude in metres"),
		logLevel:   fs.String("log_level", "", "Log level: debug, info, warn or error"),
		logFile:    fs.String("log_file", "", "Rotated log file"),
	}
}

// Load reads the configuration file named by -config and applies the flags
// that were set. fs must already be parsed.
func (f *Flags) Load(fs *flag.FlagSet) (Config, error) {
	conf, err := Load(*f.configFile)
	if err != nil {
		return conf, err
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "device_id":
			conf.DeviceID = *f.deviceID
		case "link":
			conf.Link = *f.link
		case "mqtt_broker":
			conf.MQTT.Broker = *f.mqttBroker
		case "private_key":
			conf.MQTT.PrivateKey = *f.privateKey
		case "plan_dir":
			conf.PlanDir = *f.planDir
		case "altitude":
			conf.Flight.DefaultAltitude = *f.altitude
		case "log_level":
			conf.Log.Level = *f.logLevel
		case "log_file":
			conf.Log.File = *f.logFile
		}
	})

	return conf, conf.Validate()
}
