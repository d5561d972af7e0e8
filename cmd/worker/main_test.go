package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fts-benchmark/internal/messaging"
)

func TestClaimMinIdle(t *testing.T) {
	assert.Equal(t, messaging.DefaultClaimMinIdle, claimMinIdle(0))
	assert.Equal(t, 61*time.Minute, claimMinIdle(30*time.Minute))
}

func TestNewWorkerID(t *testing.T) {
	a, b := newWorkerID(), newWorkerID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "-")
}
