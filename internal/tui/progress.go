package tui

/* Progress bar drawing adapted from
 * https://code.rocket9labs.com/tslocum/cview/src/branch/master/progressbar.go
 * MIT License, Copyright (c) 2020 Trevor Slocum <trevor@rocketnine.space>
 */

import (
	"math"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// ProgressBar indicates the progress of an operation.
type ProgressBar struct {
	*tview.Box
	sync.RWMutex

	progress int64
	max      int64
}

// NewProgressBar returns a new horizontal progress bar.
func NewProgressBar(maxVal int64) *ProgressBar {
	p := &ProgressBar{
		Box: tview.NewBox(),
		max: maxVal,
	}
	p.SetBackgroundColor(tview.Styles.PrimitiveBackgroundColor)

	return p
}

// SetProgress sets the current progress, clamped to [0, max].
func (p *ProgressBar) SetProgress(progress int64) {
	p.Lock()
	defer p.Unlock()

	p.progress = min(max(progress, 0), p.max)
}

// GetProgress gets the current progress.
func (p *ProgressBar) GetProgress() int64 {
	p.RLock()
	defer p.RUnlock()

	return p.progress
}

// Draw draws this primitive onto the screen.
func (p *ProgressBar) Draw(screen tcell.Screen) {
	p.Box.Draw(screen)

	p.Lock()
	defer p.Unlock()

	x, y, width, height := p.GetInnerRect()

	barLength := min(int(math.RoundToEven(float64(width)*(float64(p.progress)/float64(p.max)))), width)

	for i := range height {
		for j := range width {
			style := tcell.StyleDefault.Foreground(tview.Styles.PrimitiveBackgroundColor).Background(p.GetBackgroundColor())
			if j < barLength {
				style = tcell.StyleDefault.Foreground(tview.Styles.PrimaryTextColor).Background(p.GetBackgroundColor())
			}

			screen.SetContent(x+j, y+i, tcell.RuneBlock, nil, style)
		}
	}
}

// Steps displays a full-screen page with a progress bar that advances through
// a fixed list of named steps. The display owns the terminal for as long as
// it runs, so any question raised mid-phase has to go through Confirm rather
// than a reader on stdin. Advance and Confirm are safe to call from any
// goroutine except the display's own.
type Steps struct {
	app   *tview.Application
	pages *tview.Pages
	bar   *ProgressBar
	text  *tview.TextView

	total   int64
	current int64
}

// NewSteps starts a progress display over the given number of steps.
func NewSteps(title string, total int) *Steps {
	return newSteps(title, total, nil)
}

func newSteps(title string, total int, screen tcell.Screen) *Steps {
	s := &Steps{
		app:   tview.NewApplication(),
		pages: tview.NewPages(),
		bar:   NewProgressBar(int64(total)),
		total: int64(total),
	}

	if screen != nil {
		s.app.SetScreen(screen)
	}

	s.text = tview.NewTextView().SetDynamicColors(true)

	grid := tview.NewGrid().
		SetColumns(0).
		SetRows(0, 1).
		AddItem(s.text, 0, 0, 1, 1, 0, 0, false).
		AddItem(s.bar, 1, 0, 1, 1, 0, 0, false)
	grid.SetTitle(" " + title + " ").SetBorder(true)

	s.pages.AddPage("progress", grid, true, true)

	go func() { _ = s.app.SetRoot(s.pages, true).Run() }()

	return s
}

// Advance marks one more step as started and updates the display.
func (s *Steps) Advance(step string) {
	s.app.QueueUpdateDraw(func() {
		s.current++
		s.bar.SetProgress(s.current)
		s.text.SetText("\n  " + step)
	})
}

// Confirm overlays a yes/no dialog on the progress display and blocks until
// the operator picks an answer.
func (s *Steps) Confirm(question string) (bool, error) {
	answer := make(chan bool, 1)

	s.app.QueueUpdateDraw(func() {
		modal := tview.NewModal().
			SetText(question).
			AddButtons([]string{"Yes", "No"}).
			SetDoneFunc(func(_ int, label string) {
				s.pages.RemovePage("confirm")

				answer <- label == "Yes"
			})

		s.pages.AddPage("confirm", modal, true, true)
		s.app.SetFocus(modal)
	})

	return <-answer, nil
}

// Done tears the progress display down.
func (s *Steps) Done() {
	s.app.Stop()
}
