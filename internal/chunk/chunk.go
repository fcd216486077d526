// Package chunk groups sequence elements into fixed-size batches.
package chunk

import "iter"

// All yields chunks of at most size elements from seq, in order. The final
// chunk is never padded. A size below 1 yields nothing.
func All[T any](seq iter.Seq[T], size int) iter.Seq[[]T] {
	return func(yield func([]T) bool) {
		if size < 1 {
			return
		}
		batch := make([]T, 0, size)
		for v := range seq {
			batch = append(batch, v)
			if len(batch) == size {
				if !yield(batch) {
					return
				}
				batch = make([]T, 0, size)
			}
		}
		if len(batch) > 0 {
			yield(batch)
		}
	}
}

// Slice groups a slice into chunks of at most size elements.
func Slice[T any](items []T, size int) [][]T {
	if size < 1 {
		return nil
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
