package sensor

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUndecodable is returned when a MEMORY value has no recognised form.
var ErrUndecodable = stderrors.New("undecodable memory value")

var memoryMultipliers = map[byte]float64{
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// DecodeMemory converts a Grid Engine MEMORY value such as "512M" or "1.5G"
// into a byte count using binary multiples. "0", or any number equal to
// zero, decodes to 0. Every other input fails with ErrUndecodable.
func DecodeMemory(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == 0 {
		return 0, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrUndecodable, s)
	}

	mult, ok := memoryMultipliers[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("%w: %q has no K, M, G or T suffix", ErrUndecodable, s)
	}
	f, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUndecodable, s)
	}
	return f * mult, nil
}
