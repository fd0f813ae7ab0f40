// Package tui implements the interactive surface of the installer: the
// startup mode selector with its countdown, the menu pages and the
// sequential configuration prompts.
package tui

// Mode is the operating mode the operator ends up selecting.
type Mode string

const (
	// ModeNonInteractive runs with environment-provided answers only.
	ModeNonInteractive Mode = "non-interactive"

	// ModeInteractive walks the operator through every question.
	ModeInteractive Mode = "interactive"

	// ModeCancelled aborts the run without touching anything.
	ModeCancelled Mode = "cancelled"
)

// StateKind identifies a menu machine state.
type StateKind int

const (
	// RootPrompt is the initial single-key selector with the countdown.
	RootPrompt StateKind = iota

	// MenuRoot lists the available actions.
	MenuRoot

	// MenuDetail shows the description of one action before confirming.
	MenuDetail

	// Confirmed is terminal; Mode holds the selection.
	Confirmed
)

// State is one state of the menu machine.
type State struct {
	Kind StateKind

	// Detail is the selected menu item when Kind is MenuDetail.
	Detail int

	// Mode is the final selection when Kind is Confirmed.
	Mode Mode
}

// EventKind identifies an operator input.
type EventKind int

const (
	// EventTimeout fires when the countdown expires without input.
	EventTimeout EventKind = iota

	// EventDefault accepts the default choice.
	EventDefault

	// EventInteractive selects the guided mode directly.
	EventInteractive

	// EventMenu opens the menu.
	EventMenu

	// EventCancel aborts, or steps back out of the menu.
	EventCancel

	// EventSelect picks menu item Choice.
	EventSelect

	// EventBack returns from a detail page to the menu.
	EventBack

	// EventConfirm accepts the currently shown detail page.
	EventConfirm
)

// Event is one operator input fed to the machine.
type Event struct {
	Kind EventKind

	// Choice is the 1-based menu item for EventSelect.
	Choice int
}

// MenuItems are the root menu entries, 1-based in prompts.
var MenuItems = []string{
	"Guided installation (answer each question)",
	"Automatic installation (environment defaults)",
	"Exit without changes",
}

// menuModes maps a confirmed menu item to its resulting mode.
var menuModes = map[int]Mode{
	1: ModeInteractive,
	2: ModeNonInteractive,
	3: ModeCancelled,
}

// Next is the transition function of the menu machine. It is pure: the same
// state and event always produce the same result, no matter how the previous
// states were reached.
func Next(s State, e Event) State {
	switch s.Kind {
	case RootPrompt:
		switch e.Kind {
		case EventTimeout, EventDefault:
			return State{Kind: Confirmed, Mode: ModeNonInteractive}
		case EventInteractive:
			return State{Kind: Confirmed, Mode: ModeInteractive}
		case EventCancel:
			return State{Kind: Confirmed, Mode: ModeCancelled}
		case EventMenu:
			return State{Kind: MenuRoot}
		default:
		}

	case MenuRoot:
		switch e.Kind {
		case EventSelect:
			if e.Choice >= 1 && e.Choice <= len(MenuItems) {
				return State{Kind: MenuDetail, Detail: e.Choice}
			}
		case EventCancel, EventBack:
			return State{Kind: RootPrompt}
		default:
		}

	case MenuDetail:
		switch e.Kind {
		case EventConfirm:
			return State{Kind: Confirmed, Mode: menuModes[s.Detail]}
		case EventBack, EventCancel:
			return State{Kind: MenuRoot}
		default:
		}

	case Confirmed:
		// Terminal.
	}

	return s
}
