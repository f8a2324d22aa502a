package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitNames(t *testing.T) {
	assert.Nil(t, splitNames(""))
	assert.Equal(t, []string{"stale-payments", "outbox-retention"}, splitNames(" stale-payments, ,outbox-retention "))
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "settle:jobs:lock:local", lockKey(""))
	assert.Equal(t, "settle:jobs:lock:prod", lockKey("prod"))
}
