package geo

import (
	"math"

	golanggeo "github.com/kellydunn/golang-geo"
)

// MetresPerDegree is the average length of one degree at the equator.
const MetresPerDegree float64 = 1.113195e5

// Coordinate is a global position. Alt is metres above home/ground.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
	Alt float64 `json:"alt" yaml:"alt"`
}

// Distance returns the ground distance in metres between two coordinates.
//
// This is a planar approximation and will not be accurate over large
// distances or close to the poles. Altitude is ignored.
func Distance(a, b Coordinate) float64 {
	dlat := b.Lat - a.Lat
	dlon := b.Lon - a.Lon
	return math.Sqrt(dlat*dlat+dlon*dlon) * MetresPerDegree
}

// GreatCircle returns the haversine ground distance in metres.
func GreatCircle(a, b Coordinate) float64 {
	from := golanggeo.NewPoint(a.Lat, a.Lon)
	to := golanggeo.NewPoint(b.Lat, b.Lon)
	// golang-geo reports kilometres
	return from.GreatCircleDistance(to) * 1000
}

// ApproximationError is the relative error of Distance against GreatCircle.
// Identical points have no error.
func ApproximationError(a, b Coordinate) float64 {
	gc := GreatCircle(a, b)
	if gc == 0 {
		return 0
	}
	return math.Abs(Distance(a, b)-gc) / gc
}
