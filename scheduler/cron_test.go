package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type mockJob struct {
	name string
	err  error
	runs int
}

func (m *mockJob) Name() string { return m.name }

func (m *mockJob) Execute() error {
	m.runs++
	return m.err
}

func TestNewCronScheduler(t *testing.T) {
	scheduler := NewCronScheduler()
	assert.NotNil(t, scheduler)
	assert.NotNil(t, scheduler.cron)
	assert.NotNil(t, scheduler.jobs)
	assert.False(t, scheduler.running)
}

func TestCronScheduler_AddJob(t *testing.T) {
	scheduler := NewCronScheduler()
	job := &mockJob{name: "test-job"}

	err := scheduler.AddJob("test-job", "*/5 * * * *", job)
	assert.NoError(t, err)

	scheduler.mutex.RLock()
	_, exists := scheduler.jobs["test-job"]
	scheduler.mutex.RUnlock()
	assert.True(t, exists)
}

func TestCronScheduler_AddJobReplacesExisting(t *testing.T) {
	scheduler := NewCronScheduler()

	assert.NoError(t, scheduler.AddJob("sync", "*/5 * * * *", &mockJob{name: "sync"}))
	assert.NoError(t, scheduler.AddJob("sync", "0 * * * *", &mockJob{name: "sync"}))

	assert.Len(t, scheduler.jobs, 1)
	assert.Len(t, scheduler.cron.Entries(), 1)
}

func TestCronScheduler_AddJob_InvalidSchedule(t *testing.T) {
	scheduler := NewCronScheduler()
	err := scheduler.AddJob("test-job", "invalid", &mockJob{name: "test-job"})
	assert.Error(t, err)
}

func TestCronScheduler_StartStop(t *testing.T) {
	scheduler := NewCronScheduler()
	assert.False(t, scheduler.IsRunning())

	scheduler.Start()
	assert.True(t, scheduler.IsRunning())

	scheduler.Start()
	assert.True(t, scheduler.IsRunning())

	scheduler.Stop()
	assert.False(t, scheduler.IsRunning())
}

func TestSyncJob(t *testing.T) {
	source := &fakeSource{}
	s := New(source, &fakeProcessor{}, Options{Concurrency: 2})
	job := &SyncJob{Scheduler: s}

	assert.Equal(t, "product-image-sync", job.Name())
	assert.NoError(t, job.Execute())
	assert.NoError(t, s.Shutdown(t.Context()))

	assert.ErrorIs(t, job.Execute(), ErrShutdown)
}

func TestSyncJobRecordsSourceError(t *testing.T) {
	source := &fakeSource{candidatesErr: errors.New("database is locked")}
	s := New(source, &fakeProcessor{}, Options{Concurrency: 1})

	assert.NoError(t, (&SyncJob{Scheduler: s}).Execute())
	assert.NoError(t, s.Shutdown(t.Context()))
	assert.Contains(t, s.Status().Error, "database is locked")
}
