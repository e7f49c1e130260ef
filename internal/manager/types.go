package manager

// State represents the lifecycle state of the hosted pipeline.
type State string

const (
	StateIdle          State = "idle"
	StateConstructing  State = "constructing"
	StateConstructed   State = "constructed"
	StateMaterializing State = "materializing"
	StateReady         State = "ready"
	StateError         State = "error"
	StateClosed        State = "closed"
)
