package reminder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukerupert/pillbox/internal/inventory"
	"github.com/dukerupert/pillbox/internal/model"
	"github.com/dukerupert/pillbox/internal/schedule"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSendTimeout = 10 * time.Second
	defaultWorkers     = 4
)

// Store is the medication storage the engine reads from and writes quantities to.
type Store interface {
	ListMedications(ctx context.Context) ([]model.Medication, error)
	// SaveQuantity writes quantity only if the stored value still equals previous.
	SaveQuantity(ctx context.Context, id string, previous, quantity int) error
}

// Notifier delivers a message to a recipient address.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Config holds engine settings. Zero values fall back to defaults.
type Config struct {
	Location          *time.Location
	LowStockThreshold int
	// SendTimeout bounds each notification send.
	SendTimeout time.Duration
	// Workers is the number of medications processed concurrently within a tick.
	Workers int
}

// TickResult summarises one tick.
type TickResult struct {
	Minute      time.Time
	Medications int
	Due         int
	Reminded    int
	Decremented int
	Alerts      int
	Failures    int
}

type Option func(*Engine)

// WithOnChange registers a callback invoked after a medication's new quantity is saved.
func WithOnChange(fn func(model.Medication)) Option {
	return func(e *Engine) {
		e.onChange = fn
	}
}

// Engine evaluates reminders for all medications once per tick.
type Engine struct {
	mu       sync.Mutex
	store    Store
	notifier Notifier
	policy   inventory.AlertPolicy
	loc      *time.Location
	timeout  time.Duration
	workers  int
	onChange func(model.Medication)
	logger   *slog.Logger
}

// NewEngine creates a reminder engine.
func NewEngine(store Store, notifier Notifier, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store:    store,
		notifier: notifier,
		policy:   inventory.NewAlertPolicy(cfg.LowStockThreshold),
		loc:      cfg.Location,
		timeout:  cfg.SendTimeout,
		workers:  cfg.Workers,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the zone reminder times are interpreted in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// OnTick evaluates every medication against the minute containing now. Ticks are
// serialized; failures are logged per medication and never abort the tick.
// Repeated calls for the same minute each send and decrement again.
func (e *Engine) OnTick(ctx context.Context, now time.Time) TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	minute := schedule.MinuteOf(now, e.loc)
	result := TickResult{Minute: minute}

	meds, err := e.store.ListMedications(ctx)
	if err != nil {
		e.logger.Error("load medications", "minute", minute.Format("15:04"), "error", err)
		result.Failures++
		return result
	}
	result.Medications = len(meds)

	var counters tickCounters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, m := range meds {
		due := schedule.MatchDueSlots(m.ReminderTimes, minute)
		if len(due) == 0 {
			continue
		}
		counters.due.Add(int64(len(due)))
		g.Go(func() error {
			e.processMedication(gctx, m, due, &counters)
			return nil
		})
	}
	g.Wait()

	result.Due = int(counters.due.Load())
	result.Reminded = int(counters.reminded.Load())
	result.Decremented = int(counters.decremented.Load())
	result.Alerts = int(counters.alerts.Load())
	result.Failures += int(counters.failures.Load())

	if result.Due > 0 || result.Failures > 0 {
		e.logger.Info("tick complete",
			"minute", minute.Format("2006-01-02 15:04"),
			"medications", result.Medications,
			"due", result.Due,
			"reminded", result.Reminded,
			"decremented", result.Decremented,
			"alerts", result.Alerts,
			"failures", result.Failures,
		)
	}
	return result
}

type tickCounters struct {
	due, reminded, decremented, alerts, failures atomic.Int64
}

// processMedication handles the due slots of one medication in order. Each slot
// works on the quantity left by the previous one.
func (e *Engine) processMedication(ctx context.Context, m model.Medication, due []string, c *tickCounters) {
	log := e.logger.With("medication_id", m.ID, "medication", m.Name)

	if m.OwnerContact == "" {
		log.Warn("medication has no owner contact; skipping", "slots", due)
		c.failures.Add(1)
		return
	}

	current := m
	for _, slot := range due {
		subject, body := reminderMessage(current, slot)
		if err := e.send(ctx, current.OwnerContact, subject, body); err != nil {
			log.Error("send reminder", "slot", slot, "to", current.OwnerContact, "error", err)
			c.failures.Add(1)
			continue
		}
		c.reminded.Add(1)

		qty, decremented := inventory.DecrementOne(current.Quantity)
		if decremented {
			if err := e.store.SaveQuantity(ctx, current.ID, current.Quantity, qty); err != nil {
				log.Error("save quantity", "slot", slot, "quantity", qty, "error", err)
				c.failures.Add(1)
				return
			}
			current = current.WithQuantity(qty)
			c.decremented.Add(1)
			log.Debug("quantity decremented", "slot", slot, "quantity", qty)
			if e.onChange != nil {
				e.onChange(current)
			}
		}

		if e.policy.IsLowStock(current.Quantity) {
			subject, body := lowStockMessage(current)
			if err := e.send(ctx, current.OwnerContact, subject, body); err != nil {
				log.Error("send low stock alert", "quantity", current.Quantity, "error", err)
				c.failures.Add(1)
				continue
			}
			c.alerts.Add(1)
		}
	}
}

func (e *Engine) send(ctx context.Context, to, subject, body string) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.notifier.Send(ctx, to, subject, body)
}
