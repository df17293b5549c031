package player

// Queue is the ordered list of tracks waiting to play. It is not safe for
// concurrent use; Player guards it with its own mutex.
type Queue struct {
	items []Track
	seq   uint64
}

// Admit appends the tracks to the tail, giving each a fresh sequence number.
// Tracks without a stream URL are dropped. It returns the admitted tracks.
func (q *Queue) Admit(tracks []Track, requestedBy string) []Track {
	admitted := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if t.StreamURL == "" {
			continue
		}
		q.seq++
		t.Seq = q.seq
		if t.RequestedBy == "" {
			t.RequestedBy = requestedBy
		}
		q.items = append(q.items, t)
		admitted = append(admitted, t)
	}
	return admitted
}

// Append adds already-admitted tracks to the tail, keeping their sequence numbers.
func (q *Queue) Append(tracks ...Track) {
	q.items = append(q.items, tracks...)
}

// PopFront removes and returns the head of the queue.
func (q *Queue) PopFront() (Track, bool) {
	if len(q.items) == 0 {
		return Track{}, false
	}
	t := q.items[0]
	q.items[0] = Track{}
	q.items = q.items[1:]
	return t, true
}

// PushFront puts t at the head. Any other entry with the same sequence
// number is removed so navigation never leaves duplicates behind.
func (q *Queue) PushFront(t Track) {
	kept := make([]Track, 0, len(q.items)+1)
	kept = append(kept, t)
	for _, it := range q.items {
		if it.Seq != t.Seq {
			kept = append(kept, it)
		}
	}
	q.items = kept
}

// Contains reports whether a track with the given sequence number is queued.
func (q *Queue) Contains(seq uint64) bool {
	for _, it := range q.items {
		if it.Seq == seq {
			return true
		}
	}
	return false
}

// Peek returns a copy of up to n tracks from the head.
func (q *Queue) Peek(n int) []Track {
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]Track, n)
	copy(out, q.items[:n])
	return out
}

func (q *Queue) Len() int {
	return len(q.items)
}

func (q *Queue) Clear() {
	q.items = nil
}
