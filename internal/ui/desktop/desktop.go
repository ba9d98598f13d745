package desktop

import (
	"context"
	"fmt"
	"time"

	fyne "fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/kadirbelkuyu/mongobackup/internal/app"
	"github.com/kadirbelkuyu/mongobackup/internal/backup"
	"github.com/kadirbelkuyu/mongobackup/internal/config"
	"github.com/kadirbelkuyu/mongobackup/internal/database"
	"github.com/kadirbelkuyu/mongobackup/internal/profiles"
	"github.com/kadirbelkuyu/mongobackup/pkg/logger"
)

const pingTimeout = 5 * time.Second

// Run starts the desktop window prefilled from cfg and blocks until it is
// closed.
func Run(cfg *config.Config, manager *profiles.Manager) error {
	desktop := New(cfg, manager, logger.NewLogger(cfg != nil && cfg.Verbose))
	return desktop.Run()
}

// App represents the desktop UI controller.
type App struct {
	cfg     config.Config
	manager *profiles.Manager
	log     *logger.Logger

	app    fyne.App
	window fyne.Window

	status *widget.Label
	backup *backupView

	listDatabases func(ctx context.Context, cfg *config.Config) ([]database.DatabaseInfo, error)
	ping          func(ctx context.Context, uri string) error
	newPipeline   func(cfg *config.Config, log *logger.Logger) *backup.Pipeline
	background    func(fn func())
}

func New(cfg *config.Config, manager *profiles.Manager, log *logger.Logger) *App {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if manager == nil {
		manager = profiles.NewManager(app.DefaultConfigDir)
	}
	if log == nil {
		log = logger.Discard()
	}

	return &App{
		cfg:     *cfg,
		manager: manager,
		log:     log,
		listDatabases: func(ctx context.Context, cfg *config.Config) ([]database.DatabaseInfo, error) {
			return app.NewService(log).Databases(ctx, cfg)
		},
		ping: func(ctx context.Context, uri string) error {
			return database.Ping(ctx, uri, pingTimeout)
		},
		newPipeline: backup.NewService,
		background:  func(fn func()) { go fn() },
	}
}

// Run bootstraps the fyne application and blocks until the window is closed.
func (a *App) Run() error {
	a.app = fyneapp.NewWithID("github.com/kadirbelkuyu/mongobackup/desktop")
	a.window = a.app.NewWindow("MongoDB JSON Backup")
	a.window.Resize(fyne.NewSize(960, 720))
	a.app.Settings().SetTheme(theme.DarkTheme())

	a.window.SetContent(a.buildShell())
	a.refreshProfiles()
	if a.backup.uriEntry.Text != "" {
		a.backup.refreshDatabases()
	}
	a.window.ShowAndRun()
	return nil
}

func (a *App) buildShell() fyne.CanvasObject {
	header := a.buildHeader()
	status := a.buildStatusBar()
	a.backup = newBackupView(a)
	return container.NewBorder(header, status, nil, nil, a.backup.canvas())
}

func (a *App) buildHeader() fyne.CanvasObject {
	title := widget.NewLabelWithStyle("MongoDB JSON Backup", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	subtitle := widget.NewLabel("Export every collection of the selected databases to pretty-printed JSON files.")
	subtitle.Wrapping = fyne.TextWrapWord

	return container.NewVBox(title, subtitle, widget.NewSeparator())
}

func (a *App) buildStatusBar() fyne.CanvasObject {
	a.status = widget.NewLabel("Ready.")
	return container.NewBorder(nil, nil, widget.NewLabel("Status"), nil, a.status)
}

func (a *App) setStatus(format string, args ...interface{}) {
	if a.status == nil {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	a.runOnUI(func() {
		a.status.SetText(msg)
	})
}

// runOnUI hands fn to the fyne event loop. Without a running app (tests) it
// runs inline.
func (a *App) runOnUI(fn func()) {
	if fn == nil {
		return
	}
	if a.app == nil {
		fn()
		return
	}
	fyne.Do(fn)
}

func (a *App) refreshProfiles() {
	list, err := a.manager.List()
	if err != nil {
		a.setStatus("Failed to load profiles: %v", err)
		return
	}
	if a.backup != nil {
		a.backup.updateProfiles(list)
	}
}
