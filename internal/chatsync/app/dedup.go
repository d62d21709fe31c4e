package app

// DeduplicationTracker message ids already rendered for the active conversation
type DeduplicationTracker struct {
	seen map[string]struct{}
}

// NewDeduplicationTracker create DeduplicationTracker
func NewDeduplicationTracker() *DeduplicationTracker {
	return &DeduplicationTracker{seen: make(map[string]struct{})}
}

// Reset replace the tracked set wholesale, the only way ids are forgotten
func (d *DeduplicationTracker) Reset(seed []string) {
	d.seen = make(map[string]struct{}, len(seed))
	for _, id := range seed {
		if id != "" {
			d.seen[id] = struct{}{}
		}
	}
}

// HasSeen report whether id was rendered already
func (d *DeduplicationTracker) HasSeen(id string) bool {
	_, ok := d.seen[id]
	return ok
}

// MarkSeen remember id
func (d *DeduplicationTracker) MarkSeen(id string) {
	if id == "" {
		return
	}
	d.seen[id] = struct{}{}
}

// Len number of tracked ids
func (d *DeduplicationTracker) Len() int {
	return len(d.seen)
}
