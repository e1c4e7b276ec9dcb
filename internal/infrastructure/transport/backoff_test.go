package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectDelayGrowsToCap(t *testing.T) {
	delays := []time.Duration{initialReconnectDelay}
	for i := 0; i < 8; i++ {
		delays = append(delays, nextReconnectDelay(delays[len(delays)-1]))
	}

	assert.Equal(t, 4500*time.Millisecond, delays[1])
	assert.Equal(t, 6750*time.Millisecond, delays[2])
	assert.Equal(t, 10125*time.Millisecond, delays[3])

	// The schedule saturates and stays at the cap.
	assert.Equal(t, maxReconnectDelay, delays[len(delays)-1])
	assert.Equal(t, maxReconnectDelay, nextReconnectDelay(maxReconnectDelay))
}
