package jetstream

// PendingCount reports how many deliveries the receiver is tracking.
func (r *Receiver) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
