// Package reqid implements the request-id format of spec.md §6: an
// 18-character base id, with a 2-digit sequence appended on each retry.
// The base is the de-duplication key; the sequence distinguishes attempts.
package reqid

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

const baseLen = 18

// NewBase generates a fresh 18-character base request id.
func NewBase() string {
	u := uuid.New().String()
	compact := make([]byte, 0, len(u))
	for _, c := range u {
		if c != '-' {
			compact = append(compact, byte(c))
		}
	}
	if len(compact) > baseLen {
		compact = compact[:baseLen]
	}
	for len(compact) < baseLen {
		compact = append(compact, '0')
	}
	return string(compact)
}

// WithSeq appends a 2-digit sequence to a base request id.
func WithSeq(base string, seq int) string {
	return fmt.Sprintf("%s%02d", base, seq%100)
}

// Split parses a full request id into its base and sequence parts. It
// returns ok=false if the id is shorter than the fixed base length or the
// trailing sequence is not two digits.
func Split(full string) (base string, seq int, ok bool) {
	if len(full) < baseLen+2 {
		return "", 0, false
	}
	base = full[:len(full)-2]
	seqStr := full[len(full)-2:]
	n, err := strconv.Atoi(seqStr)
	if err != nil {
		return "", 0, false
	}
	return base, n, true
}

// IsStale reports whether an incoming notify's sequence is strictly less
// than the currently recorded sequence for the same base id, per spec.md
// §6: "A notify whose seq is strictly less than the current recorded seq
// is stale and ignored."
func IsStale(recordedSeq, incomingSeq int) bool {
	return incomingSeq < recordedSeq
}
