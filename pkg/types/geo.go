package types

// GeoPoint is a WGS84 coordinate. JSON field order follows GeoJSON
// convention (longitude first) in the Coordinates form used on the wire.
type GeoPoint struct {
	Longitude float64 `json:"longitude" db:"longitude"`
	Latitude  float64 `json:"latitude" db:"latitude"`
}

// TravelMode selects the speed table used for arrival estimates
type TravelMode string

const (
	TravelModeWalking TravelMode = "walking"
	TravelModeBike    TravelMode = "bike"
	TravelModeAuto    TravelMode = "auto"
	TravelModeScooter TravelMode = "scooter"
	TravelModeCar     TravelMode = "car"
)

// BoundingBox is an angular-distance approximation around a center point,
// used to pre-filter candidates before the exact distance check
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}
