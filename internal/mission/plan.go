package mission

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PlanPoint is a waypoint as written in a flight plan file.
// A missing alt uses the takeoff altitude.
type PlanPoint struct {
	Name string   `yaml:"name,omitempty"`
	Lat  float64  `yaml:"lat"`
	Lon  float64  `yaml:"lon"`
	Alt  *float64 `yaml:"alt,omitempty"`
}

// Altitude returns the point altitude or DefaultAlt.
func (p PlanPoint) Altitude() float64 {
	if p.Alt == nil {
		return DefaultAlt
	}
	return *p.Alt
}

type Plan struct {
	TakeoffAltitude float64     `yaml:"takeoff_altitude"`
	Waypoints       []PlanPoint `yaml:"waypoints"`
}

// LoadPlan reads flightplan-<device>.yaml from dir, falling back to
// flightplan.yaml when the device has no plan of its own. JSON files are
// accepted too.
func LoadPlan(dir string, deviceID string) (*Plan, error) {
	filename := filepath.Join(dir, fmt.Sprintf("flightplan-%s.yaml", deviceID))
	plan, err := LoadPlanFile(filename)
	if os.IsNotExist(errors.Cause(err)) {
		return LoadPlanFile(filepath.Join(dir, "flightplan.yaml"))
	}
	if err != nil {
		return nil, err
	}

	return plan, nil
}

func LoadPlanFile(filename string) (*Plan, error) {
	text, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.WithMessage(err, "Could not read flight plan")
	}

	var plan Plan
	err = yaml.Unmarshal(text, &plan)
	if err != nil {
		return nil, errors.WithMessagef(err, "Could not parse flight plan %s", filename)
	}

	err = plan.Validate()
	if err != nil {
		return nil, errors.WithMessagef(err, "Invalid flight plan %s", filename)
	}

	return &plan, nil
}

func (p *Plan) Validate() error {
	if p.TakeoffAltitude < 0 {
		return errors.Errorf("negative takeoff altitude %v", p.TakeoffAltitude)
	}
	if len(p.Waypoints) == 0 {
		return errors.New("no waypoints")
	}
	for i, wp := range p.Waypoints {
		if wp.Lat < -90 || wp.Lat > 90 || wp.Lon < -180 || wp.Lon > 180 {
			return errors.Errorf("waypoint %d: coordinate out of range (%v, %v)", i, wp.Lat, wp.Lon)
		}
		if wp.Alt != nil && *wp.Alt < 0 {
			return errors.Errorf("waypoint %d: negative altitude %v", i, *wp.Alt)
		}
	}
	return nil
}
