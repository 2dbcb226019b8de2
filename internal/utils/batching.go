package utils

const BATCH_SIZE = 64

// Chunk splits items into consecutive slices of at most size elements,
// preserving order. The chunks share the backing array of items.
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = BATCH_SIZE
	}
	if len(items) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}
