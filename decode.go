package sensorfw

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Wire sample sizes, §4.5/§6.3: u64 timestamp plus the kind's fixed
// fields, all little-endian.
const (
	xyzSampleSize         = 8 + 3*4 // u64 + 3x f32
	scalarSampleSize      = 8 + 4   // u64 + u32
	proximitySampleSize   = 8 + 4 + 1
	orientationSampleSize = 8 + 4
	compassSampleSize     = 8 + 4*4
	lidSampleSize         = 8 + 4 + 4
	magnetometerSampleSize = 8 + 7*4
	tapSampleSize          = 8 + 4 + 4
	temperatureSampleSize  = 8 + 4
)

// gravityOverThousand converts milli-g fixed point into m/s^2: g/1000
// with g = 9.80665.
const gravityOverThousand = 9.80665 / 1000

// decodeSample reads exactly k.SampleSize() bytes from buf (which must be
// at least that long) and returns the normalized sample payload for k.
func decodeSample(k SensorKind, buf []byte) (any, error) {
	n := k.SampleSize()
	if len(buf) < n {
		return nil, fmt.Errorf("sensorfw: short sample read for %s: need %d bytes, have %d", k, n, len(buf))
	}
	le := binary.LittleEndian
	switch k {
	case Accelerometer, Gyroscope, Rotation:
		s := XyzSample{
			Timestamp: le.Uint64(buf[0:8]),
			X:         decodeFloat32(le.Uint32(buf[8:12])),
			Y:         decodeFloat32(le.Uint32(buf[12:16])),
			Z:         decodeFloat32(le.Uint32(buf[16:20])),
		}
		normalizeXyz(k, &s)
		return s, nil

	case ALS, Humidity, Pressure, Stepcounter:
		return ScalarSample{
			Timestamp: le.Uint64(buf[0:8]),
			Value:     le.Uint32(buf[8:12]),
		}, nil

	case Proximity:
		return ProximitySample{
			Timestamp: le.Uint64(buf[0:8]),
			Distance:  le.Uint32(buf[8:12]),
			Near:      buf[12] != 0,
		}, nil

	case Orientation:
		return OrientationSample{
			Timestamp: le.Uint64(buf[0:8]),
			State:     int32(le.Uint32(buf[8:12])),
		}, nil

	case Compass:
		s := CompassSample{
			Timestamp:        le.Uint64(buf[0:8]),
			Degrees:          int32(le.Uint32(buf[8:12])),
			RawDegrees:       int32(le.Uint32(buf[12:16])),
			CorrectedDegrees: int32(le.Uint32(buf[16:20])),
			LevelPct:         int32(le.Uint32(buf[20:24])),
		}
		s.LevelPct = remapLevel(s.LevelPct)
		return s, nil

	case Lid:
		return LidSample{
			Timestamp: le.Uint64(buf[0:8]),
			Type:      int32(le.Uint32(buf[8:12])),
			Value:     le.Uint32(buf[12:16]),
		}, nil

	case Magnetometer:
		s := MagnetometerSample{
			Timestamp: le.Uint64(buf[0:8]),
			X:         int32(le.Uint32(buf[8:12])),
			Y:         int32(le.Uint32(buf[12:16])),
			Z:         int32(le.Uint32(buf[16:20])),
			RX:        int32(le.Uint32(buf[20:24])),
			RY:        int32(le.Uint32(buf[24:28])),
			RZ:        int32(le.Uint32(buf[28:32])),
			LevelPct:  int32(le.Uint32(buf[32:36])),
		}
		s.LevelPct = remapLevel(s.LevelPct)
		return s, nil

	case Tap:
		return TapSample{
			Timestamp: le.Uint64(buf[0:8]),
			Direction: le.Uint32(buf[8:12]),
			Type:      int32(le.Uint32(buf[12:16])),
		}, nil

	case Temperature:
		return TemperatureSample{
			Timestamp: le.Uint64(buf[0:8]),
			Value:     le.Uint32(buf[8:12]),
		}, nil

	default:
		return nil, fmt.Errorf("sensorfw: decode: unhandled kind %s", k)
	}
}

func decodeFloat32(bits uint32) float32 {
	return math.Float32frombits(bits)
}

// normalizeXyz applies the per-kind normalization rule from §4.5.
// Accelerometer: milli-g fixed point -> m/s^2. Gyroscope: milli-deg/s ->
// deg/s. Rotation: identity.
func normalizeXyz(k SensorKind, s *XyzSample) {
	switch k {
	case Accelerometer:
		s.X *= gravityOverThousand
		s.Y *= gravityOverThousand
		s.Z *= gravityOverThousand
	case Gyroscope:
		s.X *= 1e-3
		s.Y *= 1e-3
		s.Z *= 1e-3
	}
}

// remapLevel remaps the raw [0,3] magnetometer/compass level bucket into a
// percentage: 0->0, 3->100, otherwise level*100/3, capped to [0,100].
func remapLevel(level int32) int32 {
	switch level {
	case 0:
		return 0
	case 3:
		return 100
	default:
		pct := level * 100 / 3
		if pct < 0 {
			return 0
		}
		if pct > 100 {
			return 100
		}
		return pct
	}
}
