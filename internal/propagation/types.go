package propagation

import "time"

// Keyframe holds the earth-fixed state of a catalog at one instant.
type Keyframe struct {
	Timestamp  time.Time
	Satellites []SatellitePosition
}

// SatellitePosition is one satellite's entry in a Keyframe.
type SatellitePosition struct {
	NORADID      int
	PositionECEF [3]float64 // meters
	VelocityECEF [3]float64 // m/s
	Latitude     float64    // degrees
	Longitude    float64    // degrees
	Altitude     float64    // km
	Eclipsed     bool
}

// PropConfig holds propagation configuration loaded from the environment.
type PropConfig struct {
	Workers int           // worker pool size (default: runtime.NumCPU())
	Step    time.Duration // keyframe interval (default: 5s)
	Horizon time.Duration // keyframe horizon (default: 600s)
}
