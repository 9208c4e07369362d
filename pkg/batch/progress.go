package batch

// Status is the lifecycle state of a batch run.
type Status string

// Batch run states. A run emits idle once before the first recipient, then
// processing per recipient, and ends in complete or error.
const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Progress is a snapshot of a running batch, emitted on the runner's event
// channel after every state change. Current is 1-based while an item is
// being processed and equals Total on completion.
type Progress struct {
	Total       int
	Current     int
	Status      Status
	CurrentName string
	Err         error
}
