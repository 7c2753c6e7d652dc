package sensorfw

// XyzSample is the decoded, normalized payload for Accelerometer,
// Gyroscope, and Rotation.
type XyzSample struct {
	Timestamp uint64
	X, Y, Z   float32
}

// ScalarSample is the decoded payload for ALS, Humidity, Pressure, and
// Stepcounter: a single 32-bit reading alongside the timestamp.
type ScalarSample struct {
	Timestamp uint64
	Value     uint32
}

// ProximitySample is the decoded payload for Proximity.
type ProximitySample struct {
	Timestamp uint64
	Distance  uint32
	Near      bool // wire field is a raw byte; nonzero decodes to true
}

// OrientationSample is the decoded payload for Orientation.
type OrientationSample struct {
	Timestamp uint64
	State     int32
}

// CompassSample is the decoded, normalized payload for Compass. Level is
// remapped from the raw [0,3] bucket into a percentage.
type CompassSample struct {
	Timestamp                                       uint64
	Degrees, RawDegrees, CorrectedDegrees, LevelPct int32
}

// LidSample is the decoded payload for Lid.
type LidSample struct {
	Timestamp uint64
	Type      int32
	Value     uint32
}

// MagnetometerSample is the decoded, normalized payload for Magnetometer.
// X, Y, Z, RX, RY, RZ are carried as the raw integers of the fixed wire
// layout, with no unit scaling applied; LevelPct
// is remapped from the raw [0,3] bucket into a percentage.
type MagnetometerSample struct {
	Timestamp              uint64
	X, Y, Z, RX, RY, RZ    int32
	LevelPct               int32
}

// TapSample is the decoded payload for Tap.
type TapSample struct {
	Timestamp uint64
	Direction uint32
	Type      int32
}

// TemperatureSample is the decoded payload for Temperature.
type TemperatureSample struct {
	Timestamp uint64
	Value     uint32
}

// Reading is one decoded, kind-tagged sample. Sample holds the concrete
// typed payload for Kind (one of the *Sample types above); use the
// kind-specific accessor to retrieve it without a type switch.
type Reading struct {
	Kind   SensorKind
	Sample any
}

func (r Reading) Xyz() (XyzSample, bool)                 { s, ok := r.Sample.(XyzSample); return s, ok }
func (r Reading) Scalar() (ScalarSample, bool)           { s, ok := r.Sample.(ScalarSample); return s, ok }
func (r Reading) Proximity() (ProximitySample, bool)     { s, ok := r.Sample.(ProximitySample); return s, ok }
func (r Reading) Orientation() (OrientationSample, bool) { s, ok := r.Sample.(OrientationSample); return s, ok }
func (r Reading) Compass() (CompassSample, bool)         { s, ok := r.Sample.(CompassSample); return s, ok }
func (r Reading) Lid() (LidSample, bool)                 { s, ok := r.Sample.(LidSample); return s, ok }
func (r Reading) Magnetometer() (MagnetometerSample, bool) {
	s, ok := r.Sample.(MagnetometerSample)
	return s, ok
}
func (r Reading) Tap() (TapSample, bool)                 { s, ok := r.Sample.(TapSample); return s, ok }
func (r Reading) Temperature() (TemperatureSample, bool) { s, ok := r.Sample.(TemperatureSample); return s, ok }
