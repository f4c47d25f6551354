package events

// Event is the contract between the savings engines and their subscribers: a
// self-describing type tag. Each engine wraps its payloads in a package-local
// carrier type that additionally exposes the structured attributes.
type Event interface {
	EventType() string
}

// Emitter receives every event an engine produces. Implementations must not
// retain the event past the call.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a plain function to the Emitter contract.
type EmitterFunc func(Event)

// Emit invokes the function.
func (f EmitterFunc) Emit(evt Event) { f(evt) }

// Fanout returns an emitter that delivers every event to each of the supplied
// emitters in order. Nil entries are skipped.
func Fanout(emitters ...Emitter) Emitter {
	return EmitterFunc(func(evt Event) {
		for _, emitter := range emitters {
			if emitter != nil {
				emitter.Emit(evt)
			}
		}
	})
}

// NoopEmitter discards every event. Engines default to it so emitting is
// always safe before any subscriber is wired.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}
