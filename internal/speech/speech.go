// Package speech adapts spoken output and recognized input to text streams.
package speech

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/comigor/panda-go/internal/config"
	"github.com/comigor/panda-go/internal/logger"
)

// Speaker voices a reply.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// ConsoleSpeaker "speaks" by writing "<assistant name>: <text>" lines.
type ConsoleSpeaker struct {
	mu    sync.Mutex
	w     io.Writer
	prefs *config.Preferences
}

// NewConsoleSpeaker writes to w using the assistant name from prefs.
func NewConsoleSpeaker(w io.Writer, prefs *config.Preferences) *ConsoleSpeaker {
	return &ConsoleSpeaker{w: w, prefs: prefs}
}

func (s *ConsoleSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%s: %s\n", s.prefs.AssistantName(), text)
	return err
}

// GatedSpeaker forwards to another Speaker only while text-to-speech is
// enabled in the preferences.
type GatedSpeaker struct {
	next  Speaker
	prefs *config.Preferences
}

func NewGatedSpeaker(next Speaker, prefs *config.Preferences) *GatedSpeaker {
	return &GatedSpeaker{next: next, prefs: prefs}
}

func (s *GatedSpeaker) Speak(ctx context.Context, text string) error {
	if !s.prefs.TTSEnabled() {
		logger.FromContext(ctx).Debug("tts disabled, not speaking")
		return nil
	}
	return s.next.Speak(ctx, text)
}

// LineRecognizer yields one utterance per non-blank input line.
type LineRecognizer struct {
	sc *bufio.Scanner
}

func NewLineRecognizer(r io.Reader) *LineRecognizer {
	return &LineRecognizer{sc: bufio.NewScanner(r)}
}

// Listen blocks until the next utterance. It returns io.EOF when the input
// is exhausted.
func (l *LineRecognizer) Listen(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !l.sc.Scan() {
			if err := l.sc.Err(); err != nil {
				return "", fmt.Errorf("read utterance: %w", err)
			}
			return "", io.EOF
		}
		if text := strings.TrimSpace(l.sc.Text()); text != "" {
			return text, nil
		}
	}
}
