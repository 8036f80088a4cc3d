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

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry := NewRegistry(jobA, nil, jobB)

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, jobA, jobs[0])
	assert.Same(t, jobB, jobs[1])
	assert.Equal(t, []string{"a", "b"}, registry.Names())

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0])
}

func TestRegistryIgnoresDuplicateNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: AnalysisRetryJobName})

	assert.False(t, registry.Register(&stubJob{name: AnalysisRetryJobName}))
	assert.True(t, registry.Register(&stubJob{name: "other"}))
	assert.Len(t, registry.Jobs(), 2)
}
