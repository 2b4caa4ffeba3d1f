package race

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"
)

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// computeWPM is (correct characters / 5) per elapsed minute.
func computeWPM(correctChars int, elapsedMs int64) float64 {
	if elapsedMs <= 0 {
		return 0
	}
	minutes := float64(elapsedMs) / 60000.0
	return (float64(correctChars) / 5.0) / minutes
}

// computeAcc is the fraction of compared positions typed correctly,
// 1 when nothing has been compared yet.
func computeAcc(correctChars, mistakes int) float64 {
	den := float64(correctChars + mistakes)
	if den == 0 {
		return 1
	}
	return float64(correctChars) / den
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// newSeed draws a fresh 32-bit round seed.
func newSeed() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint32(b[:])
}
