// Package input turns terminal key presses into bus events. The
// listener owns its own polling goroutine; it never touches session
// state or any dispatch collaborator directly.
package input

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/banterworks/banterbot/internal/event"
)

// keyNames maps the configurable binding names to tcell keys.
var keyNames = map[string]tcell.Key{
	"f1":  tcell.KeyF1,
	"f2":  tcell.KeyF2,
	"f3":  tcell.KeyF3,
	"f4":  tcell.KeyF4,
	"f5":  tcell.KeyF5,
	"f6":  tcell.KeyF6,
	"f7":  tcell.KeyF7,
	"f8":  tcell.KeyF8,
	"f9":  tcell.KeyF9,
	"f10": tcell.KeyF10,
	"f11": tcell.KeyF11,
	"f12": tcell.KeyF12,
}

// KeyByName resolves a binding name like "f6" to a tcell key.
func KeyByName(name string) (tcell.Key, bool) {
	k, ok := keyNames[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}

// Bindings builds the key-to-event table from the configured names.
// Duplicate or unknown names are errors; a half-working keymap is
// worse than a refused start.
func Bindings(trigger, voiceTrigger, nextPersona, prevPersona string) (map[tcell.Key]event.Kind, error) {
	wanted := []struct {
		name string
		kind event.Kind
	}{
		{trigger, event.TriggerPrimary},
		{voiceTrigger, event.TriggerSecondary},
		{nextPersona, event.CycleNext},
		{prevPersona, event.CyclePrevious},
	}

	bindings := make(map[tcell.Key]event.Kind, len(wanted))
	for _, w := range wanted {
		key, ok := KeyByName(w.name)
		if !ok {
			return nil, fmt.Errorf("unknown key name %q for %s", w.name, w.kind)
		}
		if prev, dup := bindings[key]; dup {
			return nil, fmt.Errorf("key %q bound to both %s and %s", w.name, prev, w.kind)
		}
		bindings[key] = w.kind
	}
	return bindings, nil
}

// Listener polls a tcell screen and publishes bound events. Esc and
// Ctrl+C always publish Shutdown regardless of the binding table.
type Listener struct {
	screen   tcell.Screen
	bus      *event.Bus
	bindings map[tcell.Key]event.Kind
	logger   *slog.Logger
}

// NewListener allocates a terminal screen for the given bindings.
func NewListener(bus *event.Bus, bindings map[tcell.Key]event.Kind, logger *slog.Logger) (*Listener, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("allocate screen: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		screen:   screen,
		bus:      bus,
		bindings: bindings,
		logger:   logger,
	}, nil
}

// Run initializes the screen and polls key events until ctx is done or
// a shutdown key is pressed. It publishes Shutdown exactly once on the
// way out so the consumer loop stops too.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer l.screen.Fini()

	l.drawHelp()

	// PollEvent has no context form. An interrupt posted on cancel
	// unparks the poll so the goroutine can exit.
	go func() {
		<-ctx.Done()
		l.screen.PostEvent(tcell.NewEventInterrupt(nil))
	}()

	for {
		switch ev := l.screen.PollEvent().(type) {
		case *tcell.EventInterrupt:
			l.logger.Debug("input listener interrupted")
			return ctx.Err()

		case *tcell.EventResize:
			l.screen.Sync()
			l.drawHelp()

		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
				l.logger.Info("shutdown key pressed")
				l.bus.Publish(event.New(event.Shutdown))
				return nil
			}
			kind, ok := l.bindings[ev.Key()]
			if !ok {
				continue
			}
			l.logger.Debug("hotkey pressed", slog.String("event", string(kind)))
			l.bus.Publish(event.New(kind))

		case nil:
			// Screen finalized under us.
			return nil
		}
	}
}

func (l *Listener) drawHelp() {
	l.screen.Clear()
	style := tcell.StyleDefault
	lines := []string{
		"banterbot running",
		"",
	}
	for key, kind := range l.bindings {
		lines = append(lines, fmt.Sprintf("  %-4s %s", nameOf(key), kind))
	}
	lines = append(lines, "  esc  shutdown")
	for y, line := range lines {
		for x, r := range line {
			l.screen.SetContent(x, y, r, nil, style)
		}
	}
	l.screen.Show()
}

func nameOf(key tcell.Key) string {
	for name, k := range keyNames {
		if k == key {
			return name
		}
	}
	return fmt.Sprintf("key(%d)", key)
}
