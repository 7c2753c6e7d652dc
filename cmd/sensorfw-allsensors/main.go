// Command sensorfw-allsensors opens every sensor kind (or, given
// command-line arguments, only the kinds whose plugin name has one of
// the arguments as a prefix), prints each decoded reading to stdout,
// and exits on SIGINT/SIGTERM.
//
// This is a direct re-expression of original_source/examples/allsensors.c
// against the Go API; it is explicitly out of scope for the library's
// own design (spec.md §1), kept only as a demonstration of the public
// contract end-to-end.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	sensorfw "github.com/nemo-mobile/sensorfw-go"
)

func selected(kind sensorfw.SensorKind, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	name := kind.PluginName()
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func repr(r sensorfw.Reading) string {
	switch r.Kind {
	case sensorfw.Accelerometer, sensorfw.Gyroscope, sensorfw.Rotation:
		s, _ := r.Xyz()
		return fmt.Sprintf("%s: time=%d x=%g y=%g z=%g", r.Kind, s.Timestamp, s.X, s.Y, s.Z)
	case sensorfw.ALS, sensorfw.Humidity, sensorfw.Pressure, sensorfw.Stepcounter:
		s, _ := r.Scalar()
		return fmt.Sprintf("%s: time=%d value=%d", r.Kind, s.Timestamp, s.Value)
	case sensorfw.Proximity:
		s, _ := r.Proximity()
		return fmt.Sprintf("%s: time=%d distance=%d proximity=%t", r.Kind, s.Timestamp, s.Distance, s.Near)
	case sensorfw.Orientation:
		s, _ := r.Orientation()
		return fmt.Sprintf("%s: time=%d state=%d", r.Kind, s.Timestamp, s.State)
	case sensorfw.Compass:
		s, _ := r.Compass()
		return fmt.Sprintf("%s: time=%d degrees=%d raw=%d corrected=%d level=%d%%", r.Kind, s.Timestamp, s.Degrees, s.RawDegrees, s.CorrectedDegrees, s.LevelPct)
	case sensorfw.Lid:
		s, _ := r.Lid()
		return fmt.Sprintf("%s: time=%d type=%d value=%d", r.Kind, s.Timestamp, s.Type, s.Value)
	case sensorfw.Magnetometer:
		s, _ := r.Magnetometer()
		return fmt.Sprintf("%s: time=%d x=%d y=%d z=%d level=%d%%", r.Kind, s.Timestamp, s.X, s.Y, s.Z, s.LevelPct)
	case sensorfw.Tap:
		s, _ := r.Tap()
		return fmt.Sprintf("%s: time=%d direction=%d type=%d", r.Kind, s.Timestamp, s.Direction, s.Type)
	case sensorfw.Temperature:
		s, _ := r.Temperature()
		return fmt.Sprintf("%s: time=%d value=%d", r.Kind, s.Timestamp, s.Value)
	default:
		return fmt.Sprintf("%s: %v", r.Kind, r.Sample)
	}
}

func main() {
	prefixes := os.Args[1:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Initialize")
	var sensors []*sensorfw.Sensor
	var subs []struct {
		s  *sensorfw.Sensor
		id sensorfw.SubscriptionID
	}
	for kind := sensorfw.Proximity; kind <= sensorfw.Temperature; kind++ {
		ok := selected(kind, prefixes)
		if ok {
			fmt.Printf("starting %s\n", kind.PluginName())
		} else {
			fmt.Printf("ignoring %s\n", kind.PluginName())
			continue
		}
		s := sensorfw.NewSensor(kind)
		id := s.AddReadingChanged(func() {
			if r, ok := s.Reading(); ok {
				fmt.Println(repr(r))
			}
		})
		s.SetDataRate(5)
		s.Start()
		sensors = append(sensors, s)
		subs = append(subs, struct {
			s  *sensorfw.Sensor
			id sensorfw.SubscriptionID
		}{s, id})
	}

	fmt.Println("Mainloop")
	<-ctx.Done()

	fmt.Println("Cleanup")
	for _, sub := range subs {
		sub.s.RemoveReadingChanged(sub.id)
	}
	for _, s := range sensors {
		s.Close()
	}
}
