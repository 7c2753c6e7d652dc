package sensorfw

import (
	"errors"
	"sync"
	"weak"

	"github.com/nemo-mobile/sensorfw-go/internal/dbuswire"
	el "github.com/nemo-mobile/sensorfw-go/internal/eventloop"
	"github.com/nemo-mobile/sensorfw-go/internal/obslog"
)

type pluginState int

const (
	pluginInitial pluginState = iota
	pluginDisabled
	pluginLoading
	pluginReady
	pluginFailed
	pluginFinal
)

// Plugin is spec.md §4.2's tier: ensures the daemon has loaded the
// server-side sensor plugin matching Kind. Like Service, it is a
// per-kind weak singleton (spec.md §9); it holds its own reference to
// the shared Service rather than assuming one stays alive externally.
type Plugin struct {
	kind   SensorKind
	svc    *Service
	relSvc func()

	mu         sync.Mutex
	state      pluginState
	loadSignal *el.AbortController
	retryEpoch int
	validSubID SubscriptionID

	validHub changeHub
}

var (
	pluginMu   sync.Mutex
	pluginWeak [numSensorKinds]weak.Pointer[Plugin]
	pluginRefs [numSensorKinds]int
)

// AcquirePlugin returns the weak singleton Plugin for kind, constructing
// it (and its own Service reference) on first acquisition for that kind.
// opts are forwarded to AcquireService and are only consulted by the
// construction that creates the Service singleton.
func AcquirePlugin(kind SensorKind, opts ...Option) (*Plugin, func()) {
	if !kind.valid() {
		panic("sensorfw: invalid SensorKind")
	}

	pluginMu.Lock()
	defer pluginMu.Unlock()

	if p := pluginWeak[kind].Value(); p != nil {
		pluginRefs[kind]++
		return p, pluginRelease(p)
	}

	svc, relSvc := AcquireService(opts...)
	p := &Plugin{
		kind:     kind,
		svc:      svc,
		relSvc:   relSvc,
		validHub: newChangeHub("valid-changed"),
	}
	p.validSubID = svc.AddValidChanged(p.onServiceValidChanged)
	pluginWeak[kind] = weak.Make(p)
	pluginRefs[kind] = 1

	_ = svc.Loop().Submit(el.Task{Runnable: p.evaluate})

	return p, pluginRelease(p)
}

func pluginRelease(p *Plugin) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			pluginMu.Lock()
			pluginRefs[p.kind]--
			last := pluginRefs[p.kind] <= 0
			if last {
				pluginWeak[p.kind] = weak.Pointer[Plugin]{}
			}
			pluginMu.Unlock()
			if last {
				p.teardown()
			}
		})
	}
}

// Kind returns the sensor kind this Plugin loads.
func (p *Plugin) Kind() SensorKind { return p.kind }

// Name returns the daemon-side plugin name, e.g. "proximitysensor".
func (p *Plugin) Name() string { return p.kind.PluginName() }

// ObjectPath returns the per-sensor D-Bus object path.
func (p *Plugin) ObjectPath() string { return p.kind.ObjectPath() }

// InterfaceName returns the per-sensor D-Bus interface name.
func (p *Plugin) InterfaceName() string { return p.kind.InterfaceName() }

// Service returns the Plugin's own Service reference.
func (p *Plugin) Service() *Service { return p.svc }

// IsValid reports whether the plugin has been successfully loaded.
func (p *Plugin) IsValid() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == pluginReady
}

func (p *Plugin) AddValidChanged(fn func()) SubscriptionID { return p.validHub.add(fn) }
func (p *Plugin) RemoveValidChanged(id SubscriptionID)     { p.validHub.remove(id) }

func (p *Plugin) onServiceValidChanged() {
	p.evaluate()
}

// evaluate runs the Disabled<->Loading<->Ready state machine. It must
// run on the Service's event loop.
func (p *Plugin) evaluate() {
	p.mu.Lock()
	if p.state == pluginFinal {
		p.mu.Unlock()
		return
	}
	if !p.svc.IsValid() {
		wasValid := p.state == pluginReady
		if p.loadSignal != nil {
			p.loadSignal.Abort("service invalid")
			p.loadSignal = nil
		}
		p.state = pluginDisabled
		p.mu.Unlock()
		if wasValid {
			p.validHub.notify()
		}
		return
	}
	if p.state != pluginDisabled {
		p.mu.Unlock()
		return
	}
	p.state = pluginLoading
	ctl := el.NewAbortController()
	p.loadSignal = ctl
	p.mu.Unlock()
	p.loadPlugin(ctl)
}

func (p *Plugin) loadPlugin(ctl *el.AbortController) {
	conn := p.svc.Connection()
	if conn == nil {
		return
	}
	dbuswire.LoadPlugin(p.svc.Loop(), conn, p.Name(), ctl.Signal(), func(ok bool, err error) {
		p.onLoadComplete(ok, err)
	})
}

func (p *Plugin) onLoadComplete(ok bool, err error) {
	p.mu.Lock()
	if p.state != pluginLoading {
		p.mu.Unlock()
		return
	}
	if err != nil || !ok {
		p.state = pluginFailed
		epoch := p.retryEpoch
		p.mu.Unlock()
		if err == nil {
			err = ErrCallRejected
		} else {
			err = errors.Join(ErrCallRejected, err)
		}
		obslog.L().Warning().Str("plugin", p.Name()).Err(err).Log("sensorfw: loadPlugin failed, retrying")
		p.scheduleRetry(epoch)
		return
	}
	p.state = pluginReady
	p.mu.Unlock()
	p.validHub.notify()
}

func (p *Plugin) scheduleRetry(epoch int) {
	_ = p.svc.Loop().ScheduleTimer(p.svc.opts.retryDelay, func() {
		p.mu.Lock()
		if p.retryEpoch != epoch || p.state != pluginFailed {
			p.mu.Unlock()
			return
		}
		if !p.svc.IsValid() {
			p.state = pluginDisabled
			p.mu.Unlock()
			return
		}
		p.state = pluginLoading
		ctl := el.NewAbortController()
		p.loadSignal = ctl
		p.mu.Unlock()
		p.loadPlugin(ctl)
	})
}

func (p *Plugin) teardown() {
	p.mu.Lock()
	p.state = pluginFinal
	p.retryEpoch++
	if p.loadSignal != nil {
		p.loadSignal.Abort("plugin teardown")
	}
	p.mu.Unlock()
	p.svc.RemoveValidChanged(p.validSubID)
	p.relSvc()
}
