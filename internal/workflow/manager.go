package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vid2doc/internal/logging"
	"vid2doc/internal/notifications"
	"vid2doc/internal/queue"
	"vid2doc/internal/services"
)

// JobRunner executes one claimed job and returns its result JSON.
type JobRunner interface {
	Run(ctx context.Context, job *queue.Job) (string, error)
}

// Config tunes the manager's polling behavior.
type Config struct {
	PollInterval       time.Duration
	ErrorRetryInterval time.Duration
	Workers            int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ErrorRetryInterval <= 0 {
		c.ErrorRetryInterval = 10 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

// Manager claims pending jobs and drives them to a terminal state.
type Manager struct {
	store    *queue.Store
	notifier notifications.Notifier
	logger   *slog.Logger
	cfg      Config
	runners  map[queue.Kind]JobRunner

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a manager around the job store.
func NewManager(store *queue.Store, notifier notifications.Notifier, logger *slog.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		store:    store,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		runners:  make(map[queue.Kind]JobRunner),
	}
}

// Register installs the runner for a job kind. Must be called before Start.
func (m *Manager) Register(kind queue.Kind, runner JobRunner) {
	m.runners[kind] = runner
}

// Start fails jobs orphaned in the processing state by a previous run,
// delivers any terminal webhooks that run never sent, then begins background
// polling.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if len(m.runners) == 0 {
		return errors.New("no job runners registered")
	}

	reclaimed, err := m.store.FailStuckProcessing(ctx, queue.DaemonStopReason)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		m.logger.Warn("failed jobs orphaned by previous run", "count", reclaimed)
	}

	// Orphans failed above land in this list too, so their callbacks still
	// hear about the failure.
	unnotified, err := m.store.ListUnnotifiedTerminal(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	if len(unnotified) > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for _, job := range unnotified {
				if runCtx.Err() != nil {
					return
				}
				jobCtx := services.WithJobID(runCtx, job.ID)
				m.notifyOnce(jobCtx, job, logging.WithContext(jobCtx, m.logger))
			}
		}()
	}
	m.wg.Add(m.cfg.Workers)
	for i := 0; i < m.cfg.Workers; i++ {
		go m.runWorker(runCtx)
	}
	return nil
}

// Stop terminates background processing and waits for in-flight jobs.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.ClaimNextPending(ctx)
		if err != nil {
			m.logger.Error("failed to claim next job", "error", err)
			m.sleep(ctx, m.cfg.ErrorRetryInterval)
			continue
		}
		if job == nil {
			m.sleep(ctx, m.cfg.PollInterval)
			continue
		}
		m.processJob(ctx, job)
	}
}

func (m *Manager) processJob(ctx context.Context, job *queue.Job) {
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, m.logger).With("kind", string(job.Kind))
	logger.Info("job claimed")

	runner := m.runners[job.Kind]
	var resultJSON string
	var runErr error
	if runner == nil {
		runErr = errors.New("no runner registered for job kind " + string(job.Kind))
	} else {
		resultJSON, runErr = runner.Run(ctx, job)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			// Left in processing; the next Start fails it as orphaned.
			return
		}
		logger.Error("job failed", "error", runErr)
		if err := m.store.MarkFailed(ctx, job.ID, runErr.Error()); err != nil {
			logger.Error("failed to record job failure", "error", err)
			return
		}
	} else {
		if err := m.store.MarkCompleted(ctx, job.ID, resultJSON); err != nil {
			logger.Error("failed to record job completion", "error", err)
			return
		}
		logger.Info("job completed")
	}

	m.notifyOnce(ctx, job, logger)
}

// notifyOnce delivers the terminal webhook for the job if one is configured
// and it has not been sent before.
func (m *Manager) notifyOnce(ctx context.Context, job *queue.Job, logger *slog.Logger) {
	options := ParseOptions(job.OptionsJSON)
	if options.CallbackURL == "" || job.WebhookSent || m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, job.ID, options.Webhook()); err != nil {
		logger.Warn("webhook notification dropped", "error", err)
		return
	}
	if err := m.store.MarkWebhookSent(ctx, job.ID); err != nil {
		logger.Warn("failed to flag webhook delivery", "error", err)
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
