package service

// Sequence hands out the ordinals of one niche run, starting at 1.
type Sequence struct {
	n int
}

// NewSequence returns a counter reset to zero.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next ordinal.
func (s *Sequence) Next() int {
	s.n++
	return s.n
}
