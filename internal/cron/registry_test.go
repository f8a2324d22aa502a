package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string                       { return s.name }
func (s *stubJob) Run(context.Context) (int64, error) { return 0, nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry, err := NewRegistry(jobA, nil)
	require.NoError(t, err)
	require.NoError(t, registry.Register(jobB))
	require.NoError(t, registry.Register(nil))

	jobs, err := registry.Select()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Same(t, jobA, jobs[0])
	assert.Same(t, jobB, jobs[1])

	jobs[0] = nil
	again, err := registry.Select()
	require.NoError(t, err)
	assert.NotNil(t, again[0], "internal slice leaked")
}

func TestRegistryRejectsDuplicateAndUnnamed(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "a"}, &stubJob{name: "a"})
	assert.Error(t, err)
	_, err = NewRegistry(&stubJob{})
	assert.Error(t, err)
}

func TestRegistrySelectByName(t *testing.T) {
	registry, err := NewRegistry(&stubJob{name: "stale-payments"}, &stubJob{name: "outbox-retention"})
	require.NoError(t, err)

	jobs, err := registry.Select("outbox-retention", "stale-payments")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "stale-payments", jobs[0].Name())

	_, err = registry.Select("nope")
	assert.Error(t, err)
}
