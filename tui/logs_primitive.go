package tui

import (
	"github.com/rivo/tview"
)

// Max lines kept in the logs panel.
var maxLogLines = 1000

type LogsPrimitive struct {
	*tview.TextView
}

func NewLogsPrimitive(app *tview.Application) *LogsPrimitive {
	textView := tview.NewTextView()
	textView.SetBorder(true)
	textView.SetTitle("Logs")
	textView.SetDynamicColors(true)
	textView.SetScrollable(true)
	textView.SetWrap(true)
	textView.SetMaxLines(maxLogLines)
	textView.SetChangedFunc(func() {
		textView.ScrollToEnd()
		app.Draw()
	})
	return &LogsPrimitive{TextView: textView}
}
