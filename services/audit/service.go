package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/upb/zoneauth/models"
	"github.com/upb/zoneauth/repositories"
	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned when events are submitted before Start or after Stop
	ErrNotStarted = errors.New("audit service not started")
	// ErrBufferFull is returned by LogEvent when the queue is saturated
	ErrBufferFull = errors.New("audit event buffer full")
)

// Writer is the storage the workers flush to
type Writer interface {
	Insert(ctx context.Context, log *models.AuditLog) error
}

// AuditService writes audit rows in the background so that sign-in
// latency does not depend on the audit table.
type AuditService struct {
	writer       Writer
	logger       *zap.Logger
	events       chan *models.AuditLog
	workerCount  int
	bufferSize   int
	writeTimeout time.Duration

	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	stopped bool

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize   int           // queued events before LogEvent starts dropping
	WorkerCount  int           // concurrent writers
	WriteTimeout time.Duration // per-row insert deadline
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
	}
}

// NewAuditService creates a new AuditService. Zero values in config fall
// back to DefaultConfig.
func NewAuditService(writer Writer, logger *zap.Logger, config Config) *AuditService {
	def := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = def.BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = def.WorkerCount
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}

	return &AuditService{
		writer:       writer,
		logger:       logger,
		events:       make(chan *models.AuditLog, config.BufferSize),
		workerCount:  config.WorkerCount,
		bufferSize:   config.BufferSize,
		writeTimeout: config.WriteTimeout,
	}
}

// Start launches the workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))
	return nil
}

// Stop stops accepting events and waits up to timeout for the queue to drain.
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopped = true
	pending := len(s.events)
	close(s.events)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", pending))

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues log without blocking. A full queue drops the event.
func (s *AuditService) LogEvent(log *models.AuditLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return ErrNotStarted
	}

	select {
	case s.events <- log:
		return nil
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(log.Action)),
			zap.String("request_id", log.RequestID))
		return ErrBufferFull
	}
}

// Record queues log and only logs a failure. It satisfies the event sink
// interfaces of the sign-in path.
func (s *AuditService) Record(log *models.AuditLog) {
	if err := s.LogEvent(log); err != nil && !errors.Is(err, ErrBufferFull) {
		s.logger.Debug("audit event not recorded",
			zap.String("action", string(log.Action)),
			zap.Error(err))
	}
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))
	for log := range s.events {
		if err := s.write(log); err != nil {
			s.failed.Add(1)
			s.logger.Error("failed to write audit event",
				zap.Int("worker_id", id),
				zap.String("action", string(log.Action)),
				zap.Error(err))
			continue
		}
		s.written.Add(1)
	}
	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) write(log *models.AuditLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if err := s.writer.Insert(ctx, log); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
	Written       int64
	Dropped       int64
	Failed        int64
}

// GetStats returns a snapshot of the queue and counters
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.events),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
		Written:       s.written.Load(),
		Dropped:       s.dropped.Load(),
		Failed:        s.failed.Load(),
	}
}

// LogSignIn records a successful sign-in.
func (s *AuditService) LogSignIn(user *models.User, provider string, isNewUser bool, requestID, ip, userAgent string) error {
	log := models.NewAuditLog(models.AuditActionUserSignedIn, models.AuditResourceUsers).
		WithUser(user.ID).
		WithResource(user.ID.String()).
		WithDetails(map[string]interface{}{
			"provider":    provider,
			"is_new_user": isNewUser,
			"role":        user.Role,
		}).
		WithRequest(requestID, ip, userAgent)
	return s.LogEvent(log)
}

// LogSignInRejected records a refused sign-in. userID is nil when the
// assertion never resolved to a user.
func (s *AuditService) LogSignInRejected(userID *uuid.UUID, provider, email, reason, requestID, ip, userAgent string) error {
	log := models.NewAuditLog(models.AuditActionSignInRejected, models.AuditResourceUsers).
		WithDetails(map[string]interface{}{
			"provider": provider,
			"email":    email,
			"reason":   reason,
		}).
		WithRequest(requestID, ip, userAgent)
	if userID != nil {
		log.WithUser(*userID).WithResource(userID.String())
	}
	return s.LogEvent(log)
}

var _ Writer = (repositories.AuditRepository)(nil)
