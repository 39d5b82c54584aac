package audio

// fifoThreshold is the per-channel sample count at which buffered frames
// are released to the resampler as one batch.
const fifoThreshold = 500000

// fifo merges decoded frames of irregular size into larger batches. Only
// the first frame's timestamps are kept for a batch.
type fifo struct {
	head    Frame
	samples []int16
	held    bool
}

func (q *fifo) write(f Frame) {
	if !q.held {
		q.head = f
		q.head.Samples = nil
		q.held = true
	}
	q.samples = append(q.samples, f.Samples...)
}

// size returns buffered samples per channel.
func (q *fifo) size() int {
	if !q.held || q.head.Channels <= 0 {
		return 0
	}
	return len(q.samples) / q.head.Channels
}

func (q *fifo) ready() bool {
	return q.size() >= fifoThreshold
}

// read releases everything buffered as a single frame.
func (q *fifo) read() (Frame, bool) {
	if !q.held || len(q.samples) == 0 {
		return Frame{}, false
	}
	out := q.head
	out.Samples = q.samples
	*q = fifo{}
	return out, true
}
