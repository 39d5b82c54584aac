package pipeline

// Event is a progress notification emitted by Run. The concrete types are
// SinkCreated, SegmentWritten and Completed.
type Event interface {
	event()
}

// SinkCreated is emitted once the subtitle file exists with only its
// header, before any audio is decoded.
type SinkCreated struct {
	Path string
}

// SegmentWritten is emitted after a record has been flushed to the file.
// Times are absolute seconds.
type SegmentWritten struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// Completed is emitted when the stream was exhausted without cancellation.
type Completed struct{}

func (SinkCreated) event()    {}
func (SegmentWritten) event() {}
func (Completed) event()      {}

// EventName returns the wire name of an event.
func EventName(e Event) string {
	switch e.(type) {
	case SinkCreated:
		return "sink-created"
	case SegmentWritten:
		return "segment"
	case Completed:
		return "completed"
	}
	return "unknown"
}
