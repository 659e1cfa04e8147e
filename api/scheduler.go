/*
scheduler.go - Automated index provisioning scheduler

PURPOSE:
  Collects the composite indexes that degraded queries needed (it is a
  generic.FallbackObserver) and periodically provisions them on stores
  that support it. Until a run succeeds, affected queries keep working
  through the full-scan fallback.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each distinct index is provisioned once; failures stay pending
  - Records provisioning runs for audit and API display

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewIndexScheduler(store)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - generic/fallback.go: FallbackEvent
  - generic/store.go: IndexProvisioner
*/
package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/warp/tracker/generic"
)

// IndexRun records one provisioning attempt.
type IndexRun struct {
	ID          string    `json:"id"`
	Index       string    `json:"index"`
	Collection  string    `json:"collection"`
	Status      string    `json:"status"` // completed, failed
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// IndexScheduler provisions indexes reported missing by the fallback guard.
type IndexScheduler struct {
	Store         generic.DocumentStore
	CheckInterval time.Duration
	Enabled       bool
	Logger        *log.Logger

	// MaxRuns caps the run history kept in memory.
	MaxRuns int

	pending  map[string]generic.IndexSpec
	done     map[string]bool
	runs     []IndexRun
	pendMu   sync.Mutex
	runMu    sync.Mutex
	ticker   *time.Ticker
	stop     chan struct{}
	wg       sync.WaitGroup
	lifeMu   sync.Mutex
	sequence int
}

// NewIndexScheduler creates a new scheduler.
func NewIndexScheduler(store generic.DocumentStore) *IndexScheduler {
	return &IndexScheduler{
		Store:         store,
		CheckInterval: time.Minute,
		Enabled:       true,
		Logger:        log.Default(),
		MaxRuns:       100,
		pending:       make(map[string]generic.IndexSpec),
		done:          make(map[string]bool),
	}
}

// ObserveFallback queues the index a degraded query needed.
func (s *IndexScheduler) ObserveFallback(_ context.Context, ev generic.FallbackEvent) {
	if ev.Index.Collection == "" {
		return
	}
	name := ev.Index.Name()

	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	if s.done[name] {
		return
	}
	s.pending[name] = ev.Index
}

// Pending returns the names of indexes waiting to be provisioned, sorted.
func (s *IndexScheduler) Pending() []string {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	names := make([]string, 0, len(s.pending))
	for name := range s.pending {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Runs returns the recorded runs, newest first.
func (s *IndexScheduler) Runs() []IndexRun {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	out := make([]IndexRun, len(s.runs))
	for i, r := range s.runs {
		out[len(s.runs)-1-i] = r
	}
	return out
}

// Start begins the scheduler.
func (s *IndexScheduler) Start() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if !s.Enabled {
		s.Logger.Info("Index scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.Logger.Info("Index scheduler started", "interval", s.CheckInterval)
}

// Stop stops the scheduler.
func (s *IndexScheduler) Stop() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info("Index scheduler stopped")
	}
}

func (s *IndexScheduler) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunNow provisions every pending index and returns how many succeeded.
func (s *IndexScheduler) RunNow(ctx context.Context) int {
	p, ok := s.Store.(generic.IndexProvisioner)
	if !ok {
		return 0
	}

	s.pendMu.Lock()
	specs := make([]generic.IndexSpec, 0, len(s.pending))
	for _, spec := range s.pending {
		specs = append(specs, spec)
	}
	s.pendMu.Unlock()
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name() < specs[j].Name() })

	provisioned := 0
	for _, spec := range specs {
		run := s.provision(ctx, p, spec)
		s.record(run)
		if run.Status != "completed" {
			s.Logger.Error("Index provisioning failed", "index", run.Index, "err", run.Error)
			continue
		}
		provisioned++
		s.pendMu.Lock()
		delete(s.pending, run.Index)
		s.done[run.Index] = true
		s.pendMu.Unlock()
		s.Logger.Info("Provisioned index", "index", run.Index, "collection", run.Collection)
	}
	return provisioned
}

func (s *IndexScheduler) provision(ctx context.Context, p generic.IndexProvisioner, spec generic.IndexSpec) IndexRun {
	s.runMu.Lock()
	s.sequence++
	id := fmt.Sprintf("run-%d", s.sequence)
	s.runMu.Unlock()

	run := IndexRun{
		ID:         id,
		Index:      spec.Name(),
		Collection: spec.Collection,
		StartedAt:  time.Now().UTC(),
	}
	if err := p.EnsureIndex(ctx, spec); err != nil {
		run.Status = "failed"
		run.Error = err.Error()
	} else {
		run.Status = "completed"
	}
	run.CompletedAt = time.Now().UTC()
	return run
}

func (s *IndexScheduler) record(run IndexRun) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.runs = append(s.runs, run)
	if s.MaxRuns > 0 && len(s.runs) > s.MaxRuns {
		s.runs = s.runs[len(s.runs)-s.MaxRuns:]
	}
}
