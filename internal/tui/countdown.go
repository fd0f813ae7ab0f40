package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// SelectTimeout is how long the startup selector waits before defaulting to
// non-interactive mode.
const SelectTimeout = 30 * time.Second

// SelectMode runs the startup mode selector. The countdown proceeds to the
// non-interactive default on expiry; any keystroke cancels it and the
// operator then drives the menu machine until it reaches a terminal state.
func SelectMode(timeout time.Duration) (Mode, error) {
	app := tview.NewApplication()

	var mu sync.Mutex

	state := State{Kind: RootPrompt}
	keyPressed := false

	view := tview.NewTextView().SetDynamicColors(true)
	view.SetBorder(true).SetTitle(" Firefly III installer ")

	remaining := int(timeout / time.Second)

	render := func() {
		view.SetText(renderState(state, remaining, keyPressed))
	}

	apply := func(e Event) {
		state = Next(state, e)
		if state.Kind == Confirmed {
			app.Stop()

			return
		}

		render()
	}

	app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		mu.Lock()
		defer mu.Unlock()

		keyPressed = true

		switch state.Kind {
		case RootPrompt:
			switch {
			case ev.Key() == tcell.KeyEnter:
				apply(Event{Kind: EventDefault})
			case ev.Key() == tcell.KeyEscape || ev.Rune() == 'c':
				apply(Event{Kind: EventCancel})
			case ev.Rune() == 'i':
				apply(Event{Kind: EventInteractive})
			case ev.Rune() == 'm':
				apply(Event{Kind: EventMenu})
			default:
				// Any other key just freezes the countdown.
				render()
			}

		case MenuRoot:
			switch {
			case ev.Rune() >= '1' && ev.Rune() <= '9':
				apply(Event{Kind: EventSelect, Choice: int(ev.Rune() - '0')})
			case ev.Key() == tcell.KeyEscape || ev.Rune() == 'b':
				apply(Event{Kind: EventBack})
			default:
			}

		case MenuDetail:
			switch {
			case ev.Key() == tcell.KeyEnter:
				apply(Event{Kind: EventConfirm})
			case ev.Key() == tcell.KeyEscape || ev.Rune() == 'b':
				apply(Event{Kind: EventBack})
			default:
			}

		case Confirmed:
		}

		return nil
	})

	// Drive the countdown.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for range ticker.C {
			stop := false

			app.QueueUpdateDraw(func() {
				mu.Lock()
				defer mu.Unlock()

				if keyPressed || state.Kind != RootPrompt {
					stop = true

					return
				}

				remaining--
				if remaining <= 0 {
					apply(Event{Kind: EventTimeout})
					stop = true

					return
				}

				render()
			})

			if stop {
				return
			}
		}
	}()

	render()

	err := app.SetRoot(view, true).Run()
	if err != nil {
		return "", err
	}

	mu.Lock()
	defer mu.Unlock()

	if state.Kind != Confirmed {
		return ModeCancelled, nil
	}

	return state.Mode, nil
}

// renderState draws the text for the current machine state.
func renderState(s State, remaining int, keyPressed bool) string {
	var b strings.Builder

	switch s.Kind {
	case RootPrompt:
		b.WriteString("\n  [yellow]i[white]) guided interactive installation\n")
		b.WriteString("  [yellow]m[white]) menu\n")
		b.WriteString("  [yellow]c[white]) cancel\n")
		b.WriteString("  [yellow]Enter[white]) automatic installation\n\n")

		if keyPressed {
			b.WriteString("  Waiting for selection.\n")
		} else {
			fmt.Fprintf(&b, "  Automatic installation starts in [red]%d[white] seconds.\n", remaining)
		}

	case MenuRoot:
		b.WriteString("\n")

		for i, item := range MenuItems {
			fmt.Fprintf(&b, "  [yellow]%d[white]) %s\n", i+1, item)
		}

		b.WriteString("\n  [yellow]b[white]) back\n")

	case MenuDetail:
		fmt.Fprintf(&b, "\n  %s\n\n  [yellow]Enter[white]) confirm   [yellow]b[white]) back\n", MenuItems[s.Detail-1])

	case Confirmed:
	}

	return b.String()
}
