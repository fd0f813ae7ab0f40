package tui_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/0ldeuboi/firefly-sub000/internal/tui"
)

func TestMenuTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		state    tui.State
		event    tui.Event
		expected tui.State
	}{
		{
			name:     "countdown expiry defaults to non-interactive",
			state:    tui.State{Kind: tui.RootPrompt},
			event:    tui.Event{Kind: tui.EventTimeout},
			expected: tui.State{Kind: tui.Confirmed, Mode: tui.ModeNonInteractive},
		},
		{
			name:     "explicit default acceptance",
			state:    tui.State{Kind: tui.RootPrompt},
			event:    tui.Event{Kind: tui.EventDefault},
			expected: tui.State{Kind: tui.Confirmed, Mode: tui.ModeNonInteractive},
		},
		{
			name:     "interactive shortcut",
			state:    tui.State{Kind: tui.RootPrompt},
			event:    tui.Event{Kind: tui.EventInteractive},
			expected: tui.State{Kind: tui.Confirmed, Mode: tui.ModeInteractive},
		},
		{
			name:     "cancel from the root prompt",
			state:    tui.State{Kind: tui.RootPrompt},
			event:    tui.Event{Kind: tui.EventCancel},
			expected: tui.State{Kind: tui.Confirmed, Mode: tui.ModeCancelled},
		},
		{
			name:     "open the menu",
			state:    tui.State{Kind: tui.RootPrompt},
			event:    tui.Event{Kind: tui.EventMenu},
			expected: tui.State{Kind: tui.MenuRoot},
		},
		{
			name:     "select a menu item",
			state:    tui.State{Kind: tui.MenuRoot},
			event:    tui.Event{Kind: tui.EventSelect, Choice: 2},
			expected: tui.State{Kind: tui.MenuDetail, Detail: 2},
		},
		{
			name:     "out of range selection is ignored",
			state:    tui.State{Kind: tui.MenuRoot},
			event:    tui.Event{Kind: tui.EventSelect, Choice: 9},
			expected: tui.State{Kind: tui.MenuRoot},
		},
		{
			name:     "back out of the menu",
			state:    tui.State{Kind: tui.MenuRoot},
			event:    tui.Event{Kind: tui.EventBack},
			expected: tui.State{Kind: tui.RootPrompt},
		},
		{
			name:     "confirm a detail page",
			state:    tui.State{Kind: tui.MenuDetail, Detail: 1},
			event:    tui.Event{Kind: tui.EventConfirm},
			expected: tui.State{Kind: tui.Confirmed, Mode: tui.ModeInteractive},
		},
		{
			name:     "back from a detail page",
			state:    tui.State{Kind: tui.MenuDetail, Detail: 3},
			event:    tui.Event{Kind: tui.EventBack},
			expected: tui.State{Kind: tui.MenuRoot},
		},
		{
			name:     "confirmed is terminal",
			state:    tui.State{Kind: tui.Confirmed, Mode: tui.ModeInteractive},
			event:    tui.Event{Kind: tui.EventCancel},
			expected: tui.State{Kind: tui.Confirmed, Mode: tui.ModeInteractive},
		},
		{
			name:     "timeout after the menu opened is ignored",
			state:    tui.State{Kind: tui.MenuRoot},
			event:    tui.Event{Kind: tui.EventTimeout},
			expected: tui.State{Kind: tui.MenuRoot},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.expected, tui.Next(tc.state, tc.event))
		})
	}
}
