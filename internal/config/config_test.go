package config

import (
	"flag"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiiuae/missionrunner/internal/geo"
)

const sample = `
device_id: drone-7
link: udp:0.0.0.0:14550
plan_dir: /etc/missionrunner
vehicle:
  mavlink:
    system_id: 250
    heartbeat_timeout: 10s
  sim:
    home: {lat: 60.17, lon: 24.94}
flight:
  default_altitude: 25
  poll_interval: 500ms
  wait_timeout: 2m
telemetry:
  landed_altitude: 0.3
mqtt:
  broker: ssl://mqtt.example.com:8883
log:
  level: debug
`

func writeConfig(t *testing.T, text string) string {
	filename := filepath.Join(t.TempDir(), "missionrunner.yaml")
	require.NoError(t, ioutil.WriteFile(filename, []byte(text), 0644))
	return filename
}

func TestDefaults(t *testing.T) {
	conf, err := Load("")
	require.NoError(t, err)
	require.NoError(t, conf.Validate())

	assert.Equal(t, 10.0, conf.Flight.DefaultAltitude)
	assert.Equal(t, 0.95, conf.Flight.AltitudeReached)
	assert.Equal(t, time.Second, conf.Flight.PollInterval)
	assert.Equal(t, 5*time.Second, conf.Flight.SettleDelay)
	assert.Zero(t, conf.Flight.WaitTimeout)
	assert.Equal(t, 0.1, conf.Telemetry.LandedAltitude)
	assert.Empty(t, conf.MQTT.Broker)
}

func TestLoadFile(t *testing.T) {
	conf, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "drone-7", conf.DeviceID)
	assert.Equal(t, "udp:0.0.0.0:14550", conf.Link)
	assert.Equal(t, byte(250), conf.Vehicle.MAVLink.SystemID)
	assert.Equal(t, 10*time.Second, conf.Vehicle.MAVLink.HeartbeatTimeout)
	assert.Equal(t, 5*time.Second, conf.Vehicle.MAVLink.UploadTimeout, "unset keys keep defaults")
	assert.Equal(t, geo.Coordinate{Lat: 60.17, Lon: 24.94}, conf.Vehicle.Sim.Home)
	assert.Equal(t, 25.0, conf.Flight.DefaultAltitude)
	assert.Equal(t, 500*time.Millisecond, conf.Flight.PollInterval)
	assert.Equal(t, 2*time.Minute, conf.Flight.WaitTimeout)
	assert.Equal(t, "GUIDED", conf.Flight.GuidedMode)
	assert.Equal(t, 0.3, conf.Telemetry.LandedAltitude)
	assert.Equal(t, "ssl://mqtt.example.com:8883", conf.MQTT.Broker)
	assert.Equal(t, "RS256", conf.MQTT.Algorithm)
	assert.Equal(t, "debug", conf.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "flight: [1, 2"))
	assert.Error(t, err)
}

func TestFlagsOverrideFile(t *testing.T) {
	fs := flag.NewFlagSet("missionrunner", flag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"-config", writeConfig(t, sample),
		"-device_id", "drone-9",
		"-link", "sim",
		"-altitude", "30",
	}))

	conf, err := flags.Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "drone-9", conf.DeviceID)
	assert.Equal(t, "sim", conf.Link)
	assert.Equal(t, 30.0, conf.Flight.DefaultAltitude)
	// not given on the command line
	assert.Equal(t, "/etc/missionrunner", conf.PlanDir)
	assert.Equal(t, "debug", conf.Log.Level)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(c *Config){
		"device":   func(c *Config) { c.DeviceID = "" },
		"link":     func(c *Config) { c.Link = "" },
		"interval": func(c *Config) { c.Flight.PollInterval = 0 },
		"reached":  func(c *Config) { c.Flight.AltitudeReached = 1.5 },
		"altitude": func(c *Config) { c.Flight.DefaultAltitude = -1 },
		"timeout":  func(c *Config) { c.Flight.WaitTimeout = -time.Second },
	} {
		conf := Default()
		mutate(&conf)
		assert.Error(t, conf.Validate(), name)
	}
}
