package desktop

import (
	"errors"

	fyne "fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
)

func formRow(label string, control fyne.CanvasObject) fyne.CanvasObject {
	title := widget.NewLabel(label)
	title.Alignment = fyne.TextAlignLeading
	return container.NewVBox(title, control)
}

func (a *App) showInfo(title, message string) {
	if a.window == nil {
		a.log.Infof("%s: %s", title, message)
		return
	}
	dialog.ShowInformation(title, message, a.window)
}

func (a *App) showError(err error) {
	if a.window == nil {
		a.log.WithError(err).Error("desktop action failed")
		return
	}
	dialog.ShowError(err, a.window)
}

func (a *App) showFailure(message string) {
	a.showError(errors.New(message))
}

// orderedSelection returns the members of selected in the order of options.
func orderedSelection(options, selected []string) []string {
	picked := make(map[string]bool, len(selected))
	for _, name := range selected {
		picked[name] = true
	}
	var names []string
	for _, name := range options {
		if picked[name] {
			names = append(names, name)
		}
	}
	return names
}
