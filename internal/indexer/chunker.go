package indexer

// DefaultChunkSize is the number of images sent to the gateway in one call.
const DefaultChunkSize = 5

// Partition splits paths into consecutive chunks of at most size entries, keeping order.
// A size below one falls back to DefaultChunkSize.
func Partition(paths []string, size int) [][]string {
	if len(paths) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]string, 0, (len(paths)+size-1)/size)
	for i := 0; i < len(paths); i += size {
		end := i + size
		if end > len(paths) {
			end = len(paths)
		}
		chunks = append(chunks, paths[i:end:end])
	}
	return chunks
}
