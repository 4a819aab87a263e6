package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// JobMover promotes scheduled jobs whose due time has passed onto
// their queue. Satisfied by the job queue.
type JobMover interface {
	MoveDueJobs(ctx context.Context, queue string) (int, error)
	Depth(ctx context.Context, queue string) (int64, error)
}

// QueueObserver records queue depths, typically for metrics.
type QueueObserver interface {
	SetQueueDepth(queue string, depth int64)
}

// PollerConfig holds configuration for the due-job poller.
type PollerConfig struct {
	// CronSchedule is the cron expression for the due-job sweep.
	CronSchedule string
}

// DefaultPollerConfig returns a PollerConfig with sensible defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		CronSchedule: "*/10 * * * * *", // Every 10 seconds
	}
}

// Poller periodically sweeps the scheduled job sets of every queue and
// promotes whatever fell due. One poller per deployment is enough; the
// sweep is idempotent.
type Poller struct {
	queue    JobMover
	queues   []string
	config   PollerConfig
	cron     *cron.Cron
	observer QueueObserver
	logger   zerolog.Logger
	mu       sync.Mutex
	running  bool
	entryID  cron.EntryID
}

// NewPoller creates a poller sweeping the given queues.
func NewPoller(queue JobMover, queues []string, config PollerConfig, logger zerolog.Logger) *Poller {
	return &Poller{
		queue:  queue,
		queues: queues,
		config: config,
		cron:   cron.New(cron.WithSeconds()),
		logger: logger.With().Str("component", "job_poller").Logger(),
	}
}

// Start starts the sweep schedule.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	entryID, err := p.cron.AddFunc(p.config.CronSchedule, func() {
		p.sweep(context.Background())
	})
	if err != nil {
		return err
	}
	p.entryID = entryID
	p.running = true

	p.cron.Start()
	p.logger.Info().
		Str("schedule", p.config.CronSchedule).
		Strs("queues", p.queues).
		Msg("job poller started")
	return nil
}

// Stop stops the sweep schedule and returns a context that is done
// once an in-flight sweep finished.
func (p *Poller) Stop() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	p.running = false
	p.logger.Info().Msg("job poller stopping")
	return p.cron.Stop()
}

// SetObserver installs the queue depth observer.
func (p *Poller) SetObserver(o QueueObserver) {
	p.observer = o
}

// SweepNow runs one sweep immediately.
func (p *Poller) SweepNow(ctx context.Context) {
	p.sweep(ctx)
}

func (p *Poller) sweep(ctx context.Context) {
	for _, queue := range p.queues {
		moved, err := p.queue.MoveDueJobs(ctx, queue)
		if err != nil {
			p.logger.Error().Err(err).Str("queue", queue).Msg("due-job sweep failed")
			continue
		}
		if moved > 0 {
			p.logger.Info().Str("queue", queue).Int("moved", moved).Msg("promoted due jobs")
		}
		if p.observer != nil {
			depth, err := p.queue.Depth(ctx, queue)
			if err != nil {
				p.logger.Error().Err(err).Str("queue", queue).Msg("queue depth read failed")
				continue
			}
			p.observer.SetQueueDepth(queue, depth)
		}
	}
}
