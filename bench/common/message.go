package common

import (
	"crypto/rand"
	"strings"
)

const (
	letters  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	alphabet = letters + "0123456789 ,.!?-"
)

// PreparedRequest holds a pre-generated key and message ready for a round
// trip.
type PreparedRequest struct {
	Key     string
	Message string
}

// WorkerKey returns the key used by the given worker. Keys are letters only
// and distinct for distinct workers.
func WorkerKey(worker int) string {
	var b strings.Builder
	b.WriteString("Key")
	for {
		b.WriteByte(letters[worker%len(letters)])
		worker /= len(letters)
		if worker == 0 {
			break
		}
	}
	return b.String()
}

// PreGenerateRequests creates every request for every worker upfront so the
// benchmark measures round trips without data generation time. Each worker
// gets its own key.
func PreGenerateRequests(workers, requests, messageSize int) [][]PreparedRequest {
	all := make([][]PreparedRequest, workers)
	for w := 0; w < workers; w++ {
		key := WorkerKey(w)
		all[w] = make([]PreparedRequest, requests)
		for r := 0; r < requests; r++ {
			all[w][r] = PreparedRequest{
				Key:     key,
				Message: generateMessage(messageSize),
			}
		}
	}
	return all
}

// generateMessage returns size random printable ASCII bytes.
func generateMessage(size int) string {
	buf := make([]byte, size)
	rand.Read(buf)
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}

// TotalRequestCount returns the total number of requests across all workers.
func TotalRequestCount(requests [][]PreparedRequest) int {
	total := 0
	for _, worker := range requests {
		total += len(worker)
	}
	return total
}
