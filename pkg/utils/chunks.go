package utils

import "fmt"

// MaxParamsPerStatement is the Postgres bind parameter limit for one statement.
const MaxParamsPerStatement = 65535

// Chunk is a half-open [Start, End) window over a slice of rows.
type Chunk struct {
	Start int
	End   int
}

// ChunkSize is the number of rows with fieldCount columns that fit in one statement.
func ChunkSize(fieldCount int) int {
	if fieldCount <= 0 || fieldCount > MaxParamsPerStatement {
		panic(fmt.Sprintf("invalid field count %d", fieldCount))
	}
	return MaxParamsPerStatement / fieldCount
}

// GetChunks splits numItems rows into windows so that no statement exceeds
// MaxParamsPerStatement parameters.
func GetChunks(numItems, fieldCount int) []Chunk {
	size := ChunkSize(fieldCount)
	chunks := make([]Chunk, 0, numItems/size+1)
	for start := 0; start < numItems; start += size {
		end := start + size
		if end > numItems {
			end = numItems
		}
		chunks = append(chunks, Chunk{Start: start, End: end})
	}
	return chunks
}
