package harness

import "time"

// Event describes a single state transition of a configuration.
type Event struct {
	Stage string
	Model string
	Seed  int64
	State State
	Time  time.Time

	// Iteration is set when State is StateRecorded.
	Iteration *IterationResult
	// Failure is set when an iteration failed in State.
	Failure *IterationFailure
	// Err is set when State is StateAborted.
	Err error
}

// Observer receives progress from the engine. Implementations must be safe
// for concurrent use because configurations run in parallel.
type Observer interface {
	OnEvent(Event)
	OnComplete(*ConfigurationResult)
}

// Observers fans out to every observer in order.
type Observers []Observer

// OnEvent implements Observer.
func (o Observers) OnEvent(ev Event) {
	for _, obs := range o {
		obs.OnEvent(ev)
	}
}

// OnComplete implements Observer.
func (o Observers) OnComplete(res *ConfigurationResult) {
	for _, obs := range o {
		obs.OnComplete(res)
	}
}
