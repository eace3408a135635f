package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/robinjoseph08/golib/logger"

	"github.com/gopds/gopds/pkg/config"
	"github.com/gopds/gopds/pkg/errcodes"
	"github.com/gopds/gopds/pkg/scanner"
)

// Runner is what the worker drives; in production it is *scanner.Scanner.
type Runner interface {
	Scan(ctx context.Context) (*scanner.Summary, error)
}

// Worker states. Failed is sticky until the next trigger starts a new scan.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateFailed  = "failed"
)

// Status is a point-in-time snapshot of the worker.
type Status struct {
	State       string           `json:"state"`
	LastSummary *scanner.Summary `json:"last_summary,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	NextRun     *time.Time       `json:"next_run,omitempty"`
}

// Worker serializes scans: at most one runs at a time, and at most one more
// can be pending. Triggers arriving while both slots are taken coalesce into
// the pending one, whether they come from cron or from TriggerScan.
type Worker struct {
	cfg    *config.Config
	log    logger.Logger
	runner Runner

	trigger  chan struct{}
	shutdown chan struct{}
	done     chan struct{}
	cron     *cron.Cron

	mu          sync.Mutex
	state       string
	lastSummary *scanner.Summary
	lastErr     error
	cancelScan  context.CancelFunc
}

func New(cfg *config.Config, runner Runner) *Worker {
	return &Worker{
		cfg:    cfg,
		log:    logger.New(),
		runner: runner,

		trigger:  make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		state:    StateIdle,
	}
}

// Start launches the scan loop and, when a schedule is configured, the cron
// timer feeding it.
func (w *Worker) Start() error {
	if schedule := w.cfg.Scanner.ScanSchedule; schedule != "" {
		w.cron = cron.New()
		if _, err := w.cron.AddFunc(schedule, func() { w.TriggerScan() }); err != nil {
			return errors.WithStack(errcodes.Configuration("scan_schedule: " + err.Error()))
		}
		w.cron.Start()
		w.log.Info("recurring scans scheduled", logger.Data{"schedule": schedule})
	}

	go w.loop()
	return nil
}

// Stop cancels any running scan, drops the pending trigger, and waits for
// the loop to exit.
func (w *Worker) Stop() {
	if w.cron != nil {
		w.cron.Stop()
	}
	close(w.shutdown)

	w.mu.Lock()
	if w.cancelScan != nil {
		w.cancelScan()
	}
	w.mu.Unlock()

	<-w.done
	w.log.Info("worker stopped")
}

// TriggerScan requests a scan. It reports whether a new trigger was queued;
// false means one was already pending and this request coalesced into it.
func (w *Worker) TriggerScan() bool {
	select {
	case w.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status returns the current state snapshot.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := Status{State: w.state, LastSummary: w.lastSummary}
	if w.lastErr != nil {
		status.LastError = w.lastErr.Error()
	}
	if w.cron != nil {
		if entries := w.cron.Entries(); len(entries) > 0 {
			next := entries[0].Next
			status.NextRun = &next
		}
	}
	return status
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.shutdown:
			return
		case <-w.trigger:
			// A closed shutdown channel can lose the select race to a
			// queued trigger; never start a fresh scan while stopping.
			select {
			case <-w.shutdown:
				return
			default:
			}
			w.runScan()
		}
	}
}

func (w *Worker) runScan() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id := uuid.NewString()
	log := w.log.ID(id)
	ctx = log.WithContext(ctx)

	w.mu.Lock()
	w.state = StateRunning
	w.cancelScan = cancel
	w.mu.Unlock()

	summary, err := w.runner.Scan(ctx)

	w.mu.Lock()
	w.cancelScan = nil
	w.lastSummary = summary
	w.lastErr = err
	if err != nil {
		w.state = StateFailed
	} else {
		w.state = StateIdle
	}
	w.mu.Unlock()

	if err != nil {
		log.Err(err).Error("scan failed")
		return
	}
	log.Info("scan complete: " + summary.String())
}
