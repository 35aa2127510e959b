// Package event defines the domain events the registry emits on successful
// mutation and the publisher that delivers them to an external sink.
//
// Event delivery is a side channel: the registry's state transitions never
// depend on whether a sink is attached or reachable. Publishers must not call
// back into the registry; events are published while the registry's state
// lock is held so that sink order always matches mutation order.
package event

// Kind distinguishes the registry's event types.
type Kind string

// Event kinds emitted by the registry.
const (
	KindRegistered  Kind = "registered"
	KindUpdated     Kind = "updated"
	KindTransferred Kind = "transferred"
	KindRemoved     Kind = "removed"
)

// Payload is implemented by every event payload type.
type Payload interface {
	Kind() Kind
}

// Registered is emitted when a mark is registered. It is the only event that
// carries the original identifier string; the registry itself stores only the
// digest key.
type Registered struct {
	Key        string `json:"key"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	Caller     string `json:"caller"`
	At         int64  `json:"at"`
}

// Kind implements Payload
func (Registered) Kind() Kind { return KindRegistered }

// Updated is emitted when a mark's name or url is rewritten.
type Updated struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Caller string `json:"caller"`
	At     int64  `json:"at"`
}

// Kind implements Payload
func (Updated) Kind() Kind { return KindUpdated }

// Transferred is emitted when a mark changes owner.
type Transferred struct {
	Key           string `json:"key"`
	PreviousOwner string `json:"previous_owner"`
	NewOwner      string `json:"new_owner"`
	At            int64  `json:"at"`
}

// Kind implements Payload
func (Transferred) Kind() Kind { return KindTransferred }

// Removed is emitted when a mark is soft-removed.
type Removed struct {
	Key    string `json:"key"`
	Caller string `json:"caller"`
	At     int64  `json:"at"`
}

// Kind implements Payload
func (Removed) Kind() Kind { return KindRemoved }

// Publisher delivers events to an external sink. Implementations must be
// non-blocking from the registry's perspective and must never invoke
// registry operations.
type Publisher interface {
	Publish(p Payload)
}

// NopPublisher replaces a nil sink, does nothing.
type NopPublisher struct{}

// Publish drops the event.
func (NopPublisher) Publish(Payload) {}
