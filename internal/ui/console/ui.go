package console

import "github.com/rivo/tview"

// queueUpdate runs fn on the tview event loop, or inline when there is no
// application (tests).
func queueUpdate(app *tview.Application, fn func()) {
	if app == nil {
		fn()
		return
	}
	app.QueueUpdateDraw(fn)
}
