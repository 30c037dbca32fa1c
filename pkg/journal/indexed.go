package journal

// Indexed is an entry together with its log index and encoded size.
// A zero Size marks a placeholder standing in for a position the reader
// skipped over without decoding.
type Indexed[E any] struct {
	Index uint64
	Entry E
	Size  uint32
}

func placeholder[E any](index uint64) *Indexed[E] {
	return &Indexed[E]{Index: index}
}

func (i Indexed[E]) IsPlaceholder() bool {
	return i.Size == 0
}
