// Package notify turns phase transitions into one-shot notifications.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mr1hm/go-shelter-alerts/internal/phase"
	"github.com/mr1hm/go-shelter-alerts/internal/worker"
)

type Kind string

const (
	KindAlertStart        Kind = "alertStart"
	KindReminder          Kind = "reminder"
	KindEarlyWarning      Kind = "earlyWarning"
	KindEarlyWarningEnded Kind = "earlyWarningEnded"
	KindAllClear          Kind = "allClear"
)

const (
	CriticalReminderInterval = 10 * time.Second
	ReminderInterval         = 30 * time.Second
)

var (
	vibrateShort = []time.Duration{200 * time.Millisecond}
	vibrateAlert = []time.Duration{500 * time.Millisecond, 200 * time.Millisecond, 500 * time.Millisecond}
)

type Notification struct {
	Kind     Kind
	Critical bool
	Area     string
	At       time.Time
}

// Output performs the actual side effects. Implementations may block; they run
// on the worker pool, never on the tick loop.
type Output interface {
	Tone(ctx context.Context, critical bool) error
	Speak(ctx context.Context, key string) error
	Vibrate(ctx context.Context, pattern []time.Duration) error
}

// Dispatcher holds one guard per notification kind. Each guard is set when its
// kind fires and reset only when the triggering condition goes away, so a kind
// fires at most once per episode regardless of tick rate. Not safe for
// concurrent use; drive it from the tick loop.
type Dispatcher struct {
	out    Output
	pool   *worker.WorkerPool
	clock  clockwork.Clock
	logger *slog.Logger

	alertStarted bool
	critical     bool
	lastReminder time.Time
	earlyWarned  bool
	allClear     bool
}

type Option func(*Dispatcher)

func WithClock(c clockwork.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher runs effects on pool, or inline when pool is nil.
func NewDispatcher(out Output, pool *worker.WorkerPool, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		out:    out,
		pool:   pool,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Observe evaluates one tick and returns the notifications it fired.
func (d *Dispatcher) Observe(p phase.Phase, in phase.Input) []Notification {
	now := d.clock.Now()
	area := ""
	if in.Alert != nil {
		area = in.Alert.Area
	}

	var fired []Notification
	fire := func(kind Kind, critical bool) {
		fired = append(fired, Notification{Kind: kind, Critical: critical, Area: area, At: now})
	}

	switch {
	case p.Alerting() && !d.alertStarted:
		d.alertStarted = true
		d.critical = phase.IsCritical(in.Alert.MigunTime)
		d.lastReminder = now
		fire(KindAlertStart, d.critical)
	case p.Alerting():
		if now.Sub(d.lastReminder) >= d.reminderInterval() {
			d.lastReminder = now
			fire(KindReminder, d.critical)
		}
	case in.Alert == nil:
		d.alertStarted = false
		d.critical = false
		d.lastReminder = time.Time{}
	}

	if in.NoticePresent {
		if p == phase.EarlyWarning && !d.earlyWarned {
			d.earlyWarned = true
			fire(KindEarlyWarning, false)
		}
	} else if d.earlyWarned {
		d.earlyWarned = false
		if in.Alert == nil {
			fire(KindEarlyWarningEnded, false)
		}
	}

	if p == phase.CanExit {
		if !d.allClear {
			d.allClear = true
			fire(KindAllClear, false)
		}
	} else {
		d.allClear = false
	}

	for _, n := range fired {
		d.dispatch(n)
	}
	return fired
}

func (d *Dispatcher) reminderInterval() time.Duration {
	if d.critical {
		return CriticalReminderInterval
	}
	return ReminderInterval
}

func (d *Dispatcher) dispatch(n Notification) {
	d.logger.Info("notification", "kind", n.Kind, "critical", n.Critical, "area", n.Area)

	job := d.effects(n)
	if d.pool == nil {
		if err := job(context.Background()); err != nil {
			d.logger.Warn("notification output failed", "kind", n.Kind, "error", err)
		}
		return
	}
	if !d.pool.Submit(job) {
		d.logger.Warn("notification dropped", "kind", n.Kind)
	}
}

func (d *Dispatcher) effects(n Notification) worker.Job {
	return func(ctx context.Context) error {
		switch n.Kind {
		case KindAlertStart:
			if err := d.out.Tone(ctx, n.Critical); err != nil {
				return err
			}
			if err := d.out.Vibrate(ctx, vibrateAlert); err != nil {
				return err
			}
			if n.Critical {
				return d.out.Speak(ctx, "voice.braceYourself")
			}
			return d.out.Speak(ctx, "voice.enterShelter")
		case KindReminder:
			if err := d.out.Tone(ctx, n.Critical); err != nil {
				return err
			}
			return d.out.Vibrate(ctx, vibrateShort)
		case KindEarlyWarning:
			if err := d.out.Tone(ctx, false); err != nil {
				return err
			}
			return d.out.Speak(ctx, "voice.earlyWarning")
		case KindEarlyWarningEnded:
			return d.out.Speak(ctx, "voice.earlyWarningEnded")
		case KindAllClear:
			if err := d.out.Tone(ctx, false); err != nil {
				return err
			}
			return d.out.Speak(ctx, "voice.canExit")
		}
		return nil
	}
}
