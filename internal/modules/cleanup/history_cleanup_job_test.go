package cleanup

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockPruner struct {
	mock.Mock
}

func (m *mockPruner) Prune(retention time.Duration) (int64, error) {
	args := m.Called(retention)
	return args.Get(0).(int64), args.Error(1)
}

func TestHistoryCleanupJob_Run(t *testing.T) {
	pruner := new(mockPruner)
	pruner.On("Prune", 720*time.Hour).Return(int64(12), nil)

	job := NewHistoryCleanupJob(pruner, 720*time.Hour, zerolog.Nop())
	assert.NoError(t, job.Run())
	assert.Equal(t, "history_cleanup", job.Name())
	pruner.AssertExpectations(t)
}

func TestHistoryCleanupJob_DisabledRetention(t *testing.T) {
	pruner := new(mockPruner)

	job := NewHistoryCleanupJob(pruner, 0, zerolog.Nop())
	assert.NoError(t, job.Run())
	pruner.AssertNotCalled(t, "Prune", mock.Anything)
}

func TestHistoryCleanupJob_PropagatesError(t *testing.T) {
	pruner := new(mockPruner)
	pruner.On("Prune", time.Hour).Return(int64(0), errors.New("disk I/O error"))

	job := NewHistoryCleanupJob(pruner, time.Hour, zerolog.Nop())
	assert.EqualError(t, job.Run(), "disk I/O error")
}
