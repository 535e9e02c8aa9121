package domain

// Queue is the ordered pending sequence of tracks for one session plus
// the current playback slot. The current slot is distinct from the
// pending sequence: a track held in current is never also pending.
// Queue itself is not safe for concurrent use; the owning session
// serializes access.
type Queue struct {
	pending []*Track
	current *Track
}

// NewQueue creates an empty Queue.
func NewQueue() Queue {
	return Queue{pending: make([]*Track, 0)}
}

// Enqueue appends a track to the end of the pending sequence.
func (q *Queue) Enqueue(track *Track) {
	q.pending = append(q.pending, track)
}

// Advance pops the head of the pending sequence into the current slot
// and returns it. If the pending sequence is empty, the current slot is
// cleared and Advance returns nil.
func (q *Queue) Advance() *Track {
	if len(q.pending) == 0 {
		q.current = nil
		return nil
	}
	q.current = q.pending[0]
	q.pending = q.pending[1:]
	return q.current
}

// Current returns the track in the current slot, or nil if empty.
func (q *Queue) Current() *Track {
	return q.current
}

// Pending returns a copy of the pending sequence in enqueue order.
func (q *Queue) Pending() []*Track {
	result := make([]*Track, len(q.pending))
	copy(result, q.pending)
	return result
}

// Len returns the number of pending tracks, excluding current.
func (q *Queue) Len() int {
	return len(q.pending)
}

// IsEmpty returns true if nothing is pending and nothing is current.
func (q *Queue) IsEmpty() bool {
	return len(q.pending) == 0 && q.current == nil
}

// Clear empties both the pending sequence and the current slot.
func (q *Queue) Clear() {
	q.pending = make([]*Track, 0)
	q.current = nil
}
