package scheduler

import (
	"sync"

	"github.com/gofiber/fiber/v2/log"
	cron "github.com/robfig/cron/v3"
)

// Job represents a scheduled job that can be executed
type Job interface {
	Execute() error
	Name() string
}

// CronScheduler manages cron jobs
type CronScheduler struct {
	cron    *cron.Cron
	jobs    map[string]cron.EntryID
	mutex   sync.RWMutex
	running bool
}

// NewCronScheduler creates a new cron scheduler
func NewCronScheduler() *CronScheduler {
	return &CronScheduler{
		cron: cron.New(),
		jobs: make(map[string]cron.EntryID),
	}
}

// AddJob adds a job with the given schedule, replacing a job of the same name
func (s *CronScheduler) AddJob(name string, schedule string, job Job) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := job.Execute(); err != nil {
			log.Errorf("Scheduled job %s failed: %v", job.Name(), err)
		}
	})
	if err != nil {
		return err
	}

	s.jobs[name] = entryID
	return nil
}

// Start starts the scheduler
func (s *CronScheduler) Start() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		s.cron.Start()
		s.running = true
	}
}

// Stop stops the scheduler. Jobs already running are not interrupted.
func (s *CronScheduler) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		s.cron.Stop()
		s.running = false
	}
}

// IsRunning returns whether the scheduler is running
func (s *CronScheduler) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// SyncJob triggers a batch run on the sync scheduler.
type SyncJob struct {
	Scheduler *Scheduler
}

// Name returns the job name
func (j *SyncJob) Name() string {
	return "product-image-sync"
}

// Execute starts a batch unless one is already running
func (j *SyncJob) Execute() error {
	ack, err := j.Scheduler.Start()
	if err != nil {
		return err
	}
	if !ack.Started {
		log.Infof("Skipping scheduled sync, run %s still in progress", ack.RunID)
	}
	return nil
}
