package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mr1hm/go-shelter-alerts/internal/phase"
)

// Terminal is an Output for a text console: a bell for tones, a line of text for speech.
type Terminal struct {
	mu   sync.Mutex
	w    io.Writer
	lang phase.Language
}

func NewTerminal(w io.Writer, lang phase.Language) *Terminal {
	return &Terminal{w: w, lang: lang}
}

func (t *Terminal) Tone(ctx context.Context, critical bool) error {
	bell := "\a"
	if critical {
		bell = "\a\a\a"
	}
	return t.write(bell)
}

func (t *Terminal) Speak(ctx context.Context, key string) error {
	return t.write(fmt.Sprintf(">> %s\n", phase.Message(key, t.lang)))
}

// Vibrate has no console equivalent.
func (t *Terminal) Vibrate(ctx context.Context, pattern []time.Duration) error {
	return nil
}

func (t *Terminal) write(s string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.w, s)
	return err
}
