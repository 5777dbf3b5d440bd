package mission

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadPlanYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "flightplan.yaml", `
takeoff_altitude: 20
waypoints:
  - name: church
    lat: 48.0
    lon: 2.0
  - lat: 48.01
    lon: 2.01
    alt: 35
`)

	plan, err := LoadPlan(dir, "drone-1")
	require.NoError(t, err)
	assert.Equal(t, 20.0, plan.TakeoffAltitude)
	require.Len(t, plan.Waypoints, 2)
	assert.Equal(t, "church", plan.Waypoints[0].Name)
	assert.Equal(t, DefaultAlt, plan.Waypoints[0].Altitude())
	assert.Equal(t, 35.0, plan.Waypoints[1].Altitude())
}

func TestLoadPlanPrefersDeviceFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "flightplan.yaml", "takeoff_altitude: 10\nwaypoints: [{lat: 1, lon: 1}]\n")
	// JSON is valid YAML
	writeFile(t, dir, "flightplan-drone-2.yaml", `{"takeoff_altitude": 15, "waypoints": [{"lat": 2, "lon": 2}]}`)

	plan, err := LoadPlan(dir, "drone-2")
	require.NoError(t, err)
	assert.Equal(t, 15.0, plan.TakeoffAltitude)

	plan, err = LoadPlan(dir, "drone-3")
	require.NoError(t, err)
	assert.Equal(t, 10.0, plan.TakeoffAltitude)
}

func TestLoadPlanRejectsInvalidDeviceFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "flightplan.yaml", "takeoff_altitude: 10\nwaypoints: [{lat: 1, lon: 1}]\n")
	writeFile(t, dir, "flightplan-drone-2.yaml", "takeoff_altitude: 15\nwaypoints: [{lat: 480.0, lon: 2}]\n")
	writeFile(t, dir, "flightplan-drone-3.yaml", "waypoints: [{lat: 1")

	plan, err := LoadPlan(dir, "drone-2")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "flightplan-drone-2.yaml")
	assert.Nil(t, plan)

	_, err = LoadPlan(dir, "drone-3")
	assert.Error(t, err)
}

func TestLoadPlanMissing(t *testing.T) {
	_, err := LoadPlan(t.TempDir(), "drone-1")
	assert.Error(t, err)
}

func TestPlanValidate(t *testing.T) {
	neg := -3.0
	for _, tc := range []struct {
		name string
		plan Plan
		ok   bool
	}{
		{"valid", Plan{TakeoffAltitude: 10, Waypoints: []PlanPoint{{Lat: 1, Lon: 1}}}, true},
		{"empty", Plan{TakeoffAltitude: 10}, false},
		{"negative takeoff", Plan{TakeoffAltitude: -1, Waypoints: []PlanPoint{{Lat: 1, Lon: 1}}}, false},
		{"latitude", Plan{Waypoints: []PlanPoint{{Lat: 91, Lon: 1}}}, false},
		{"longitude", Plan{Waypoints: []PlanPoint{{Lat: 1, Lon: -181}}}, false},
		{"negative alt", Plan{Waypoints: []PlanPoint{{Lat: 1, Lon: 1, Alt: &neg}}}, false},
	} {
		err := tc.plan.Validate()
		if tc.ok {
			assert.NoError(t, err, tc.name)
		} else {
			assert.Error(t, err, tc.name)
		}
	}
}
