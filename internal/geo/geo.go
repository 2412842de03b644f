package geo

import (
	"fmt"
	"math"

	"helper-dispatch/pkg/types"
)

// earthRadiusKm is the mean Earth radius used for great-circle math
const earthRadiusKm = 6371.0

// speed table in km/h per travel mode; city-traffic averages
var modeSpeeds = map[types.TravelMode]float64{
	types.TravelModeWalking: 5,
	types.TravelModeBike:    15,
	types.TravelModeAuto:    25,
	types.TravelModeScooter: 20,
	types.TravelModeCar:     30,
}

func toRad(deg float64) float64 {
	return deg * (math.Pi / 180)
}

func validPoint(p types.GeoPoint) bool {
	return !math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude) &&
		!math.IsInf(p.Latitude, 0) && !math.IsInf(p.Longitude, 0)
}

// Distance returns the haversine great-circle distance between two points in
// kilometers. Symmetric; zero for identical points.
func Distance(a, b types.GeoPoint) (float64, error) {
	if !validPoint(a) || !validPoint(b) {
		return 0, fmt.Errorf("%w: non-numeric coordinate", types.ErrInvalidInput)
	}

	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c, nil
}

// WithinRadius reports whether b lies within radiusKm of a. A missing point
// yields false, not an error; a non-positive radius is a caller error.
func WithinRadius(a, b *types.GeoPoint, radiusKm float64) (bool, error) {
	if radiusKm <= 0 {
		return false, fmt.Errorf("%w: radius must be positive, got %v", types.ErrInvalidInput, radiusKm)
	}
	if a == nil || b == nil {
		return false, nil
	}
	d, err := Distance(*a, *b)
	if err != nil {
		return false, err
	}
	return d <= radiusKm, nil
}

// EstimateArrival estimates travel time in minutes for the given distance and
// mode, ceiling-rounded with a 10% traffic buffer. Unrecognized modes fall
// back to bike.
func EstimateArrival(distanceKm float64, mode types.TravelMode) (int, error) {
	if distanceKm < 0 {
		return 0, fmt.Errorf("%w: distance must be non-negative, got %v", types.ErrInvalidInput, distanceKm)
	}
	if distanceKm == 0 {
		return 0, nil
	}

	speed, ok := modeSpeeds[mode]
	if !ok {
		speed = modeSpeeds[types.TravelModeBike]
	}

	minutes := (distanceKm / speed) * 60
	buffer := minutes * 0.1
	return int(math.Ceil(minutes + buffer)), nil
}

// BoundingBox computes an angular-distance approximation of the box enclosing
// the radius around center, for cheap pre-filtering ahead of the exact
// haversine check.
func BoundingBox(center types.GeoPoint, radiusKm float64) (types.BoundingBox, error) {
	if !validPoint(center) {
		return types.BoundingBox{}, fmt.Errorf("%w: missing center point", types.ErrInvalidInput)
	}
	if radiusKm <= 0 {
		return types.BoundingBox{}, fmt.Errorf("%w: radius must be positive, got %v", types.ErrInvalidInput, radiusKm)
	}

	lat := toRad(center.Latitude)
	lng := toRad(center.Longitude)
	angular := radiusKm / earthRadiusKm

	return types.BoundingBox{
		MinLat: (lat - angular) * (180 / math.Pi),
		MaxLat: (lat + angular) * (180 / math.Pi),
		MinLng: (lng - angular/math.Cos(lat)) * (180 / math.Pi),
		MaxLng: (lng + angular/math.Cos(lat)) * (180 / math.Pi),
	}, nil
}
