package epidemic

// pairKey is an unordered pair of agent IDs, stored low ID first.
type pairKey struct {
	lo, hi int
}

func newPairKey(a, b int) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

// ContactLedger records which agent pairs have already been evaluated.
// Membership is order independent: (a, b) and (b, a) are the same entry.
type ContactLedger struct {
	pairs map[pairKey]struct{}
}

// NewContactLedger creates an empty ledger.
func NewContactLedger() *ContactLedger {
	return &ContactLedger{pairs: make(map[pairKey]struct{})}
}

// Contains reports whether the pair has been recorded.
func (l *ContactLedger) Contains(a, b int) bool {
	_, ok := l.pairs[newPairKey(a, b)]
	return ok
}

// Record adds the pair. Recording an existing pair is a no-op.
func (l *ContactLedger) Record(a, b int) {
	l.pairs[newPairKey(a, b)] = struct{}{}
}

// Len returns the number of distinct pairs recorded.
func (l *ContactLedger) Len() int {
	return len(l.pairs)
}

// Clone returns an independent copy of the ledger.
func (l *ContactLedger) Clone() *ContactLedger {
	c := &ContactLedger{pairs: make(map[pairKey]struct{}, len(l.pairs))}
	for k := range l.pairs {
		c.pairs[k] = struct{}{}
	}
	return c
}
