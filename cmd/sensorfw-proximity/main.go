// Command sensorfw-proximity opens the proximity sensor, prints each
// decoded reading to stdout, and exits on SIGINT/SIGTERM.
//
// This is a direct re-expression of original_source/examples/proximity.c
// against the Go API; it is explicitly out of scope for the library's
// own design (spec.md §1), kept only as a demonstration of the public
// contract end-to-end.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sensorfw "github.com/nemo-mobile/sensorfw-go"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Initialize")
	s := sensorfw.NewSensor(sensorfw.Proximity)
	id := s.AddReadingChanged(func() {
		r, ok := s.Reading()
		if !ok {
			return
		}
		sample, ok := r.Proximity()
		if !ok {
			return
		}
		fmt.Printf("%s: time=%d distance=%d proximity=%t\n",
			s.Name(), sample.Timestamp, sample.Distance, sample.Near)
	})
	s.Start()

	fmt.Println("Mainloop")
	<-ctx.Done()

	fmt.Println("Cleanup")
	s.RemoveReadingChanged(id)
	s.Close()
}
