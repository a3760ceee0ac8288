package resource

// Handle is an opaque reference to a slot in a handle table.
// Handle 0 is reserved and always invalid.
type Handle uint64

// Event types for handle lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventRetained
	EventReleased
	EventRemoved
)

// Event represents a handle lifecycle event.
type Event struct {
	Handle Handle
	Type   EventType
	Strong int32
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnHandleEvent(e Event) { f(e) }
