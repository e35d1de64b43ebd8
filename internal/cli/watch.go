package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mr1hm/go-shelter-alerts/internal/client"
	"github.com/mr1hm/go-shelter-alerts/internal/config"
	"github.com/mr1hm/go-shelter-alerts/internal/logging"
	"github.com/mr1hm/go-shelter-alerts/internal/notify"
	"github.com/mr1hm/go-shelter-alerts/internal/phase"
	"github.com/mr1hm/go-shelter-alerts/internal/worker"
	"github.com/spf13/cobra"
)

type watchOptions struct {
	server string
	area   string
	poll   time.Duration
	tick   time.Duration
	lang   string
}

func WatchCmd() *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch [area]",
		Short: "Follow the countdown and phase for one area",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyClientDefaults(&opts, cfg.Client)
			if len(args) == 1 {
				opts.area = args[0]
			}
			if opts.area == "" {
				return errors.New("area required: pass it as an argument or set WATCH_AREA")
			}

			logger := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, true)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runWatch(ctx, opts, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "", "Server base URL (default from WATCH_SERVER_URL)")
	cmd.Flags().StringVar(&opts.area, "area", "", "Area to follow (default from WATCH_AREA)")
	cmd.Flags().DurationVar(&opts.poll, "poll", 0, "Snapshot poll interval")
	cmd.Flags().DurationVar(&opts.tick, "tick", 0, "Phase evaluation interval")
	cmd.Flags().StringVar(&opts.lang, "lang", string(phase.Hebrew), "Message language (he, en)")
	return cmd
}

func applyClientDefaults(opts *watchOptions, cfg config.ClientConfig) {
	if opts.server == "" {
		opts.server = cfg.ServerURL
	}
	if opts.area == "" {
		opts.area = cfg.Area
	}
	if opts.poll <= 0 {
		opts.poll = cfg.PollInterval
	}
	if opts.tick <= 0 {
		opts.tick = cfg.TickInterval
	}
}

func runWatch(ctx context.Context, opts watchOptions, dst io.Writer, logger *slog.Logger) error {
	clock := clockwork.NewRealClock()
	// Notifications are written from pool workers; everything shares this writer.
	out := &syncWriter{w: dst}

	engine := client.New(opts.server,
		client.WithClock(clock),
		client.WithPollInterval(opts.poll),
		client.WithLogger(logger),
	)

	pool := worker.NewWorkerPool(2, 16, logger)
	pool.Start(ctx)
	defer pool.Stop()

	w := newWatcher(opts.area, engine, notify.NewDispatcher(
		notify.NewTerminal(out, phase.Language(opts.lang)), pool,
		notify.WithClock(clock), notify.WithLogger(logger),
	), client.NewEndWatcher(clock), out, phase.Language(opts.lang))

	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()

	fmt.Fprintf(out, "watching %s via %s\n", opts.area, opts.server)

	ticker := clock.NewTicker(opts.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case <-ticker.Chan():
			w.step()
		}
	}
}

// watcher joins the sync engine, phase engine and dispatcher for one selection.
type watcher struct {
	area       string
	engine     *client.Engine
	dispatcher *notify.Dispatcher
	ended      *client.EndWatcher
	out        io.Writer
	lang       phase.Language

	last      phase.Phase
	lastSecs  int
	lastError bool
}

func newWatcher(area string, engine *client.Engine, d *notify.Dispatcher, ended *client.EndWatcher, out io.Writer, lang phase.Language) *watcher {
	return &watcher{
		area:       area,
		engine:     engine,
		dispatcher: d,
		ended:      ended,
		out:        out,
		lang:       lang,
		lastSecs:   -1,
	}
}

func (w *watcher) step() phase.Phase {
	st := w.engine.State()

	in := phase.Input{NoticePresent: st.Notice != nil}
	rec, ok := w.engine.Find(w.area)
	if ok {
		in.Alert = &rec
		in.Remaining = w.engine.RemainingTime(rec)
	}
	in.Ended = w.ended.Observe(w.area, ok)

	p := phase.Compute(in)
	w.dispatcher.Observe(p, in)
	w.render(p, in, st.Err != nil)
	return p
}

func (w *watcher) render(p phase.Phase, in phase.Input, failing bool) {
	var b strings.Builder

	if failing != w.lastError {
		w.lastError = failing
		if failing {
			b.WriteString("! connection lost, showing last known state\n")
		} else {
			b.WriteString("connection restored\n")
		}
	}

	if p != w.last {
		w.last = p
		w.lastSecs = -1
		t := phase.TreatmentFor(p)
		fmt.Fprintf(&b, "\x1b[%sm%s\x1b[0m", t.Color, phase.Message(t.TextKey, w.lang))
		if t.InstructionKey != "" {
			b.WriteString(" " + phase.Message(t.InstructionKey, w.lang))
		}
		b.WriteString("\n")
	}

	if in.Alert != nil && p.Alerting() {
		secs := int(math.Ceil(in.Remaining))
		if secs != w.lastSecs {
			w.lastSecs = secs
			fmt.Fprintf(&b, "  %s: %ds / %ds\n", w.area, secs, in.Alert.MigunTime)
		}
	}

	if b.Len() > 0 {
		io.WriteString(w.out, b.String())
	}
}

// syncWriter serializes writes so each Write lands whole.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
