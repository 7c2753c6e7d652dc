package sensorfw

import (
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/nemo-mobile/sensorfw-go/internal/dbuswire"
	el "github.com/nemo-mobile/sensorfw-go/internal/eventloop"
	"github.com/nemo-mobile/sensorfw-go/internal/obslog"
)

type reportingState int

const (
	reportingInitial reportingState = iota
	reportingDisabled
	reportingRethink
	reportingStarting
	reportingConfigure
	reportingStarted
	reportingStopping
	reportingStopped
	reportingFailed
	reportingFinal
)

// reportingValues is one of Reporting's three (wanted, requested,
// effective) snapshots for {enable, datarate, override}.
type reportingValues struct {
	enable   bool
	datarate float64
	override bool
}

// Reporting is spec.md §4.4's child state machine: it reconciles
// user-expressed desires (wanted) against acknowledged daemon state
// (effective) through an intermediate requested snapshot, one per
// Sensor. active (mirrored by Sensor.IsActive) holds only while Started.
type Reporting struct {
	sensor *Sensor

	mu        sync.Mutex
	state     reportingState
	wanted    reportingValues
	requested reportingValues
	effective reportingValues

	enableCtl              *el.AbortController
	rateCtl                *el.AbortController
	overrideCtl            *el.AbortController
	rateDone, overrideDone bool

	retryEpoch int

	sensorValidSubID SubscriptionID
	activeHub        changeHub
	validHub         changeHub
}

// newReporting creates the Reporting child for s, subscribing to its
// parent's valid-changed so reconciliation re-runs whenever the session
// becomes or stops being usable.
func newReporting(s *Sensor) *Reporting {
	r := &Reporting{
		sensor:    s,
		activeHub: newChangeHub("active-changed"),
		validHub:  newChangeHub("valid-changed"),
	}
	r.sensorValidSubID = s.AddValidChanged(func() {
		_ = s.loop().Submit(el.Task{Runnable: r.evaluate})
	})
	return r
}

func (r *Reporting) AddActiveChanged(fn func()) SubscriptionID { return r.activeHub.add(fn) }
func (r *Reporting) RemoveActiveChanged(id SubscriptionID)     { r.activeHub.remove(id) }
func (r *Reporting) AddValidChanged(fn func()) SubscriptionID  { return r.validHub.add(fn) }
func (r *Reporting) RemoveValidChanged(id SubscriptionID)      { r.validHub.remove(id) }

// IsActive reports whether the sensor is running and fully configured.
func (r *Reporting) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == reportingStarted
}

// IsValid reports whether the last reconciliation settled, in either
// direction (Started or Stopped).
func (r *Reporting) IsValid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == reportingStarted || r.state == reportingStopped
}

// IsStarted reports whether the daemon has acknowledged start and
// configuration.
func (r *Reporting) IsStarted() bool { return r.IsActive() }

// IsStopped reports whether the daemon has acknowledged stop.
func (r *Reporting) IsStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == reportingStopped
}

// Start requests the sensor be enabled.
func (r *Reporting) Start() { r.setWanted(func(w *reportingValues) { w.enable = true }) }

// Stop requests the sensor be disabled.
func (r *Reporting) Stop() { r.setWanted(func(w *reportingValues) { w.enable = false }) }

// SetDataRate requests a sampling rate in Hz.
func (r *Reporting) SetDataRate(hz float64) { r.setWanted(func(w *reportingValues) { w.datarate = hz }) }

// SetInterval requests a sampling interval in microseconds, converted
// to Hz (0 or negative means "use the default rate").
func (r *Reporting) SetInterval(us int64) {
	var hz float64
	if us > 0 {
		hz = 1e6 / float64(us)
	}
	r.SetDataRate(hz)
}

// SetOverride requests the stand-by override flag.
func (r *Reporting) SetOverride(on bool) { r.setWanted(func(w *reportingValues) { w.override = on }) }

func (r *Reporting) setWanted(mutate func(*reportingValues)) {
	r.mu.Lock()
	mutate(&r.wanted)
	r.mu.Unlock()
	_ = r.sensor.loop().Submit(el.Task{Runnable: r.evaluate})
}

// evaluate re-enters Rethink from any settled state once the sensor is
// valid, or moves to Disabled otherwise. Must run on the owning
// Service's event loop.
func (r *Reporting) evaluate() {
	r.mu.Lock()
	if r.state == reportingFinal {
		r.mu.Unlock()
		return
	}
	if !r.sensor.IsValid() {
		r.disableLocked()
		return
	}
	switch r.state {
	case reportingInitial, reportingDisabled, reportingStarted, reportingStopped, reportingFailed:
		r.enterRethinkLocked()
	default:
		r.mu.Unlock()
	}
}

// enterRethinkLocked snapshots wanted into requested and dispatches the
// reconciliation decision. r.mu must be held; it is released before
// return.
//
// Mirrors the leave-state handling of the original daemon's reporting
// state machine: leaving Started or Stopped drops active/valid before
// any new transition runs, so a subscriber never misses the transient
// "went inactive" edge during a live reconcile.
func (r *Reporting) enterRethinkLocked() {
	wasActive := r.state == reportingStarted
	wasValid := r.state == reportingStarted || r.state == reportingStopped
	r.state = reportingRethink
	r.requested = r.wanted
	req := r.requested
	eff := r.effective
	r.mu.Unlock()
	if wasActive {
		r.activeHub.notify()
	}
	if wasValid {
		r.validHub.notify()
	}
	r.rethink(req, eff)
}

// rethink decides, from a requested/effective snapshot taken on entry
// to Rethink, whether a start/stop call is needed at all (spec.md
// §4.4's "only if requested.enable != effective.enable").
func (r *Reporting) rethink(req, eff reportingValues) {
	if req.enable != eff.enable {
		if req.enable {
			r.enterStarting()
		} else {
			r.enterStopping()
		}
		return
	}
	if req.enable {
		r.mu.Lock()
		if r.state != reportingRethink {
			r.mu.Unlock()
			return
		}
		r.state = reportingConfigure
		r.mu.Unlock()
		r.beginConfigure(req)
		return
	}
	r.mu.Lock()
	if r.state != reportingRethink {
		r.mu.Unlock()
		return
	}
	r.state = reportingStopped
	r.mu.Unlock()
	r.validHub.notify()
}

func (r *Reporting) enterStarting() {
	r.mu.Lock()
	if r.state != reportingRethink {
		r.mu.Unlock()
		return
	}
	r.state = reportingStarting
	ctl := el.NewAbortController()
	r.enableCtl = ctl
	conn := r.sensor.plugin.Service().Connection()
	sessionID := r.sensor.SessionID()
	r.mu.Unlock()
	if conn == nil {
		return
	}
	dbuswire.Start(r.sensor.loop(), conn, dbus.ObjectPath(r.sensor.ObjectPath()), r.sensor.InterfaceName(), sessionID, ctl.Signal(), func(err error) {
		r.onEnableComplete(true, err)
	})
}

// enterStopping resets effective.datarate/override to defaults on
// entry, per spec.md §4.4, so the next Started cycle re-applies them.
func (r *Reporting) enterStopping() {
	r.mu.Lock()
	if r.state != reportingRethink {
		r.mu.Unlock()
		return
	}
	r.state = reportingStopping
	r.effective.datarate = 0
	r.effective.override = false
	ctl := el.NewAbortController()
	r.enableCtl = ctl
	conn := r.sensor.plugin.Service().Connection()
	sessionID := r.sensor.SessionID()
	r.mu.Unlock()
	if conn == nil {
		return
	}
	dbuswire.Stop(r.sensor.loop(), conn, dbus.ObjectPath(r.sensor.ObjectPath()), r.sensor.InterfaceName(), sessionID, ctl.Signal(), func(err error) {
		r.onEnableComplete(false, err)
	})
}

func (r *Reporting) onEnableComplete(enabling bool, err error) {
	r.mu.Lock()
	if enabling {
		if r.state != reportingStarting {
			r.mu.Unlock()
			return
		}
	} else if r.state != reportingStopping {
		r.mu.Unlock()
		return
	}
	if err != nil {
		r.failLocked(err)
		return
	}
	r.enableCtl = nil
	r.effective.enable = enabling
	if enabling {
		r.state = reportingConfigure
		req := r.requested
		r.mu.Unlock()
		r.beginConfigure(req)
		return
	}
	r.state = reportingStopped
	r.mu.Unlock()
	r.activeHub.notify()
	r.validHub.notify()
}

// beginConfigure issues setDataRate/setStandbyOverride concurrently,
// skipping either call whose requested value already matches effective.
func (r *Reporting) beginConfigure(req reportingValues) {
	r.mu.Lock()
	if r.state != reportingConfigure {
		r.mu.Unlock()
		return
	}
	needRate := req.datarate != r.effective.datarate
	needOverride := req.override != r.effective.override
	conn := r.sensor.plugin.Service().Connection()
	sessionID := r.sensor.SessionID()
	loop := r.sensor.loop()
	objPath := dbus.ObjectPath(r.sensor.ObjectPath())
	iface := r.sensor.InterfaceName()
	var rateCtl, overrideCtl *el.AbortController
	if needRate {
		rateCtl = el.NewAbortController()
		r.rateCtl = rateCtl
	}
	if needOverride {
		overrideCtl = el.NewAbortController()
		r.overrideCtl = overrideCtl
	}
	r.mu.Unlock()

	if conn == nil {
		return
	}

	if needRate {
		dbuswire.SetDataRate(loop, conn, objPath, iface, sessionID, req.datarate, rateCtl.Signal(), func(err error) {
			r.onRateComplete(err)
		})
	} else {
		r.onRateComplete(nil)
	}
	if needOverride {
		dbuswire.SetStandbyOverride(loop, conn, objPath, iface, sessionID, req.override, overrideCtl.Signal(), func(applied bool, err error) {
			r.onOverrideComplete(applied, err)
		})
	} else {
		r.onOverrideComplete(true, nil)
	}
}

func (r *Reporting) onRateComplete(err error) {
	r.mu.Lock()
	if r.state != reportingConfigure {
		r.mu.Unlock()
		return
	}
	if err != nil {
		r.failLocked(err)
		return
	}
	r.effective.datarate = r.requested.datarate
	r.rateCtl = nil
	r.rateDone = true
	r.maybeFinishConfigureLocked()
}

// onOverrideComplete tolerates failure per spec.md §4.4/§8 scenario 4:
// sensors lacking stand-by override support should not block reaching
// Started.
func (r *Reporting) onOverrideComplete(applied bool, err error) {
	r.mu.Lock()
	if r.state != reportingConfigure {
		r.mu.Unlock()
		return
	}
	if err != nil || !applied {
		obslog.L().Warning().Str("sensor", r.sensor.Name()).Err(err).Log("sensorfw: stand-by override not applied, continuing")
	}
	r.effective.override = r.requested.override
	r.overrideCtl = nil
	r.overrideDone = true
	r.maybeFinishConfigureLocked()
}

func (r *Reporting) maybeFinishConfigureLocked() {
	if !r.rateDone || !r.overrideDone {
		r.mu.Unlock()
		return
	}
	r.rateDone = false
	r.overrideDone = false
	r.state = reportingStarted
	r.mu.Unlock()
	r.activeHub.notify()
	r.validHub.notify()
}

func (r *Reporting) failLocked(err error) {
	wasActive := r.state == reportingStarted
	r.state = reportingFailed
	r.enableCtl = nil
	r.rateCtl = nil
	r.overrideCtl = nil
	r.rateDone = false
	r.overrideDone = false
	r.retryEpoch++
	epoch := r.retryEpoch
	r.mu.Unlock()
	if wasActive {
		r.activeHub.notify()
	}
	obslog.L().Warning().Str("sensor", r.sensor.Name()).Err(err).Log("sensorfw: reporting reconcile failed, retrying")
	r.scheduleRetry(epoch)
}

func (r *Reporting) scheduleRetry(epoch int) {
	_ = r.sensor.loop().ScheduleTimer(r.sensor.plugin.Service().opts.retryDelay, func() {
		r.mu.Lock()
		if r.retryEpoch != epoch || r.state != reportingFailed {
			r.mu.Unlock()
			return
		}
		if !r.sensor.IsValid() {
			r.disableLocked()
			return
		}
		r.enterRethinkLocked()
	})
}

// disableLocked resets all three effective values to defaults, per
// spec.md §4.4. r.mu must be held; it is released before return.
func (r *Reporting) disableLocked() {
	wasActive := r.state == reportingStarted
	wasValid := r.state == reportingStarted || r.state == reportingStopped
	if r.enableCtl != nil {
		r.enableCtl.Abort("sensor invalid")
		r.enableCtl = nil
	}
	if r.rateCtl != nil {
		r.rateCtl.Abort("sensor invalid")
		r.rateCtl = nil
	}
	if r.overrideCtl != nil {
		r.overrideCtl.Abort("sensor invalid")
		r.overrideCtl = nil
	}
	r.rateDone = false
	r.overrideDone = false
	r.state = reportingDisabled
	r.effective = reportingValues{}
	r.requested = reportingValues{}
	r.retryEpoch++
	r.mu.Unlock()
	if wasActive {
		r.activeHub.notify()
	}
	if wasValid {
		r.validHub.notify()
	}
}

func (r *Reporting) teardown() {
	r.mu.Lock()
	r.state = reportingFinal
	r.retryEpoch++
	if r.enableCtl != nil {
		r.enableCtl.Abort("reporting teardown")
	}
	if r.rateCtl != nil {
		r.rateCtl.Abort("reporting teardown")
	}
	if r.overrideCtl != nil {
		r.overrideCtl.Abort("reporting teardown")
	}
	r.mu.Unlock()
	r.sensor.RemoveValidChanged(r.sensorValidSubID)
}
