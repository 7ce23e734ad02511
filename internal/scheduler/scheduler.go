// Package scheduler fires named triggers on cron schedules in a fixed timezone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"bookworms/internal/logger"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

var (
	ErrUnknownTrigger = errors.New("unknown trigger")
	ErrAlreadyRunning = errors.New("trigger is already running")
	ErrStopped        = errors.New("scheduler stopped")
)

// Action is the work a trigger performs. It must honor ctx cancellation at item boundaries.
type Action func(ctx context.Context) error

// Trigger binds a name to a schedule and an action.
type Trigger struct {
	Name     string
	Cron     string // standard 5-field expression
	Timezone string
	Action   Action
}

// Result describes one finished run.
type Result struct {
	Trigger  string
	RunID    string
	Manual   bool
	Err      error
	Started  time.Time
	Duration time.Duration
}

type entry struct {
	Trigger
	mu sync.Mutex // held while a run is in flight
	id cron.EntryID
}

// Scheduler owns the cron runner and the registered triggers.
type Scheduler struct {
	cron       *cron.Cron
	root       context.Context
	cancel     context.CancelFunc
	runTimeout time.Duration
	log        *slog.Logger

	mu       sync.RWMutex
	entries  map[string]*entry
	onFinish []func(Result)
	manual   sync.WaitGroup
}

// New creates a scheduler. Each run gets a context derived from the scheduler's
// root context and bounded by runTimeout.
func New(runTimeout time.Duration) *Scheduler {
	log := logger.With("component", "scheduler")
	cl := cronLogger{log: log}
	root, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		root:       root,
		cancel:     cancel,
		runTimeout: runTimeout,
		log:        log,
		entries:    make(map[string]*entry),
	}
}

// Register adds a trigger. The expression is evaluated in the trigger's timezone.
func (s *Scheduler) Register(t Trigger) error {
	if t.Name == "" || t.Action == nil {
		return errors.New("trigger needs a name and an action")
	}
	spec := t.Cron
	if t.Timezone != "" {
		if _, err := time.LoadLocation(t.Timezone); err != nil {
			return fmt.Errorf("trigger %s: %w", t.Name, err)
		}
		spec = "CRON_TZ=" + t.Timezone + " " + t.Cron
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[t.Name]; dup {
		return fmt.Errorf("trigger %s registered twice", t.Name)
	}

	e := &entry{Trigger: t}
	id, err := s.cron.AddFunc(spec, func() {
		_ = s.run(s.root, e, false)
	})
	if err != nil {
		return fmt.Errorf("trigger %s: parse %q: %w", t.Name, t.Cron, err)
	}
	e.id = id
	s.entries[t.Name] = e
	s.log.Info("trigger registered", "trigger", t.Name, "cron", t.Cron, "timezone", t.Timezone)
	return nil
}

// OnFinish registers a callback invoked after every run.
func (s *Scheduler) OnFinish(fn func(Result)) {
	s.mu.Lock()
	s.onFinish = append(s.onFinish, fn)
	s.mu.Unlock()
}

// Start begins firing triggers.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "triggers", s.Names())
}

// Stop cancels in-flight runs at their next item boundary and waits for them
// until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	stopCtx := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-stopCtx.Done()
		s.manual.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out, some runs may still be finishing")
	}
}

// RunNow fires a trigger synchronously. It refuses to overlap a run of the same trigger.
func (s *Scheduler) RunNow(ctx context.Context, name string) (Result, error) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTrigger, name)
	}
	if s.root.Err() != nil {
		return Result{}, ErrStopped
	}

	s.manual.Add(1)
	defer s.manual.Done()

	// stop cancels manual runs too
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.root, cancel)
	defer stop()

	res := s.run(rctx, e, true)
	if errors.Is(res.Err, ErrAlreadyRunning) {
		return res, res.Err
	}
	return res, nil
}

// Names lists the registered triggers.
func (s *Scheduler) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for n := range s.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Next returns the next scheduled firing of a trigger.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(e.id).Next, true
}

func (s *Scheduler) run(parent context.Context, e *entry, manual bool) Result {
	res := Result{Trigger: e.Name, RunID: uuid.NewString(), Manual: manual, Started: time.Now()}
	log := s.log.With("trigger", e.Name, "run_id", res.RunID, "manual", manual)

	if !e.mu.TryLock() {
		log.Warn("skipping run, previous run still in progress")
		runsTotal.WithLabelValues(e.Name, "skipped").Inc()
		res.Err = ErrAlreadyRunning
		return res
	}
	defer e.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.runTimeout)
	defer cancel()
	ctx = logger.AppendCtx(ctx, "trigger", e.Name, "run_id", res.RunID)

	log.Info("trigger started")
	res.Err = e.Action(ctx)
	res.Duration = time.Since(res.Started)
	runDuration.WithLabelValues(e.Name).Observe(res.Duration.Seconds())

	if res.Err != nil {
		// the next firing retries; no immediate retry here
		runsTotal.WithLabelValues(e.Name, "error").Inc()
		log.Error("trigger failed", "duration", res.Duration, "error", res.Err)
	} else {
		runsTotal.WithLabelValues(e.Name, "ok").Inc()
		log.Info("trigger finished", "duration", res.Duration)
	}

	s.mu.RLock()
	hooks := append([]func(Result){}, s.onFinish...)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(res)
	}
	return res
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
