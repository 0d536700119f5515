package feed

import (
	"math"
	"time"
)

const (
	baseDelay  = 1 * time.Second
	maxDelay   = 60 * time.Second
	maxRetries = 10
)

// CalculateBackoff returns the delay for the given retry attempt:
// 1s, 2s, 4s ... capped at one minute.
func CalculateBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := baseDelay * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	return delay
}
