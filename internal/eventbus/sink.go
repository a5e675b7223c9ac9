package eventbus

import "time"

// Sink receives every event a publisher emits. Publishers hold a set of
// sinks and call Emit once per event; each sink decides where it goes.
type Sink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Sinks fans a single Emit out to every non-nil member.
type Sinks []Sink

func (s Sinks) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	for _, sk := range s {
		if sk != nil {
			sk.Emit(e)
		}
	}
}

// Local publishes events unchanged on an in-process bus.
func Local(b Bus) Sink {
	return SinkFunc(func(e Event) {
		if b != nil {
			b.Publish(e)
		}
	})
}

// GlobalDirectory is the directory tag carried by cross-window events.
const GlobalDirectory = "global"

// Payload is the discriminated body of a global event.
type Payload struct {
	Type       string `json:"type"`
	Properties any    `json:"properties"`
}

// Envelope is what external consumers (UI windows, SSE clients) receive.
type Envelope struct {
	Directory string  `json:"directory"`
	Payload   Payload `json:"payload"`
}

// GlobalEventType is the bus event type used for enveloped fan-out events.
const GlobalEventType = "event"

// Global wraps events in an Envelope and publishes them on the fan-out bus.
func Global(b Bus) Sink {
	return SinkFunc(func(e Event) {
		if b == nil {
			return
		}
		b.Publish(Event{
			Type: GlobalEventType,
			Time: e.Time,
			Data: Envelope{
				Directory: GlobalDirectory,
				Payload:   Payload{Type: e.Type, Properties: e.Data},
			},
		})
	})
}
