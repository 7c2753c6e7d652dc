package sensorfw

import el "github.com/nemo-mobile/sensorfw-go/internal/eventloop"

// SubscriptionID identifies a registered change-notification handler, for
// later removal. It is a thin rename of the event loop's ListenerID,
// matching the public vocabulary of spec.md §9's "small observer
// registry per tier" design note.
type SubscriptionID = el.ListenerID

// changeHub is the "small observer registry per tier" from spec.md §9:
// add_X_changed(fn) -> id; remove(id), delivered synchronously on the
// event loop at the point of change. It wraps the event loop's DOM-style
// EventTarget, using a single fixed event type per hub instance.
type changeHub struct {
	target    *el.EventTarget
	eventType string
}

func newChangeHub(eventType string) changeHub {
	return changeHub{target: el.NewEventTarget(), eventType: eventType}
}

// add registers fn to be invoked (with no arguments) whenever notify is
// called. Returns an id usable with remove.
func (h changeHub) add(fn func()) SubscriptionID {
	return h.target.AddEventListener(h.eventType, func(*el.Event) { fn() })
}

func (h changeHub) remove(id SubscriptionID) {
	h.target.RemoveEventListenerByID(h.eventType, id)
}

// notify synchronously dispatches to every registered handler, in
// registration order. Must be called from the owning tier's event loop.
func (h changeHub) notify() {
	h.target.DispatchEvent(el.NewEvent(h.eventType))
}
