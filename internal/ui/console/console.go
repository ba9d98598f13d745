package console

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/kadirbelkuyu/mongobackup/internal/app"
	"github.com/kadirbelkuyu/mongobackup/internal/backup"
	"github.com/kadirbelkuyu/mongobackup/internal/config"
	"github.com/kadirbelkuyu/mongobackup/internal/database"
	"github.com/kadirbelkuyu/mongobackup/internal/ui/monitor"
	"github.com/kadirbelkuyu/mongobackup/pkg/logger"
)

const (
	pingTimeout = 5 * time.Second
	gaugeWidth  = 40
	helpText    = "[::b]space[-:-:-] toggle • [::b]r[-:-:-] refresh • [::b]t[-:-:-] test • [::b]b[-:-:-] backup • [::b]tab[-:-:-] edit URI • [::b]q[-:-:-] quit"
)

// Run opens the terminal console and blocks until the user quits.
func Run(cfg *config.Config, log *logger.Logger) error {
	c := New(cfg, log)

	var loadOnce sync.Once
	c.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		loadOnce.Do(func() {
			if c.uri() != "" {
				go c.refresh(c.currentConfig())
			}
		})
		return false
	})

	if err := c.app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// Console is the tview front-end. Widget state is only touched from the
// tview event loop; background work reports back through queueUpdate.
type Console struct {
	app *tview.Application
	cfg config.Config
	log *logger.Logger

	uriField *tview.InputField
	dbList   *tview.List
	logView  *tview.TextView
	gauge    *tview.TextView
	status   *tview.TextView

	databases []database.DatabaseInfo
	selected  map[string]bool
	state     *monitor.State

	listDatabases func(ctx context.Context, cfg *config.Config) ([]database.DatabaseInfo, error)
	ping          func(ctx context.Context, uri string) error
	newPipeline   func(cfg *config.Config, log *logger.Logger) *backup.Pipeline
}

func New(cfg *config.Config, log *logger.Logger) *Console {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if log == nil {
		log = logger.Discard()
	}

	c := &Console{
		app:      tview.NewApplication(),
		cfg:      *cfg,
		log:      log,
		selected: make(map[string]bool),
		state:    monitor.New(),
		listDatabases: func(ctx context.Context, cfg *config.Config) ([]database.DatabaseInfo, error) {
			return app.NewService(log).Databases(ctx, cfg)
		},
		ping: func(ctx context.Context, uri string) error {
			return database.Ping(ctx, uri, pingTimeout)
		},
		newPipeline: quietPipeline,
	}
	for _, name := range cfg.Backup.Databases {
		c.selected[name] = true
	}

	c.build()
	return c
}

func (c *Console) build() {
	c.uriField = tview.NewInputField().
		SetLabel("MongoDB URI: ").
		SetText(c.initialURI())
	c.uriField.SetDoneFunc(func(key tcell.Key) {
		c.focus(c.dbList)
	})
	c.uriField.SetBorder(true).SetTitle("Connection")

	c.dbList = tview.NewList().ShowSecondaryText(false)
	c.dbList.AddItem("Press 'r' to load databases", "", 0, nil)
	c.dbList.SetBorder(true).SetTitle("Databases")

	c.logView = tview.NewTextView().SetWrap(true)
	c.logView.SetBorder(true).SetTitle("Log")

	c.gauge = tview.NewTextView()
	c.gauge.SetText(gaugeText(0, 0, 0, gaugeWidth))

	c.status = tview.NewTextView().SetDynamicColors(true)
	c.status.SetText(helpText)

	body := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(c.dbList, 36, 1, true).
		AddItem(c.logView, 0, 3, false)

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.uriField, 3, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(c.gauge, 1, 0, false).
		AddItem(c.status, 1, 0, false)

	c.app.SetRoot(layout, true).
		SetFocus(c.dbList).
		SetInputCapture(c.handleKey)
}

func (c *Console) initialURI() string {
	if c.cfg.HasConnection() {
		return c.cfg.GetMongoURI()
	}
	return ""
}

func (c *Console) uri() string {
	return strings.TrimSpace(c.uriField.GetText())
}

func (c *Console) focus(p tview.Primitive) {
	if c.app != nil {
		c.app.SetFocus(p)
	}
}

func (c *Console) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if c.app != nil && c.app.GetFocus() == c.uriField {
		if event.Key() == tcell.KeyTab || event.Key() == tcell.KeyEscape {
			c.focus(c.dbList)
			return nil
		}
		return event
	}

	switch event.Key() {
	case tcell.KeyTab:
		c.focus(c.uriField)
		return nil
	case tcell.KeyRune:
	default:
		return event
	}

	switch event.Rune() {
	case 'q', 'Q':
		if c.app != nil {
			c.app.Stop()
		}
	case ' ':
		c.toggle(c.dbList.GetCurrentItem())
	case 'r', 'R':
		c.logf("Loading databases...")
		go c.refresh(c.currentConfig())
	case 't', 'T':
		c.logf("Testing connection to %s...", database.MaskURI(c.uri()))
		go c.testConnection(c.currentConfig())
	case 'b', 'B':
		c.startBackup()
	default:
		return event
	}
	return nil
}

// currentConfig snapshots the form for background work.
func (c *Console) currentConfig() *config.Config {
	cfg := c.cfg
	cfg.Mongo = config.MongoConfig{URI: c.uri()}
	cfg.Backup.Databases = c.selectedDatabases()
	return &cfg
}

func (c *Console) refresh(cfg *config.Config) {
	if cfg.Mongo.URI == "" {
		queueUpdate(c.app, func() { c.logf("Enter a MongoDB URI first.") })
		return
	}

	databases, err := c.listDatabases(context.Background(), cfg)
	queueUpdate(c.app, func() {
		if err != nil {
			c.logf("Failed to list databases: %v", err)
			return
		}
		c.setDatabases(databases)
		c.logf("Found %d database(s).", len(databases))
	})
}

func (c *Console) testConnection(cfg *config.Config) {
	if cfg.Mongo.URI == "" {
		queueUpdate(c.app, func() { c.logf("Enter a MongoDB URI first.") })
		return
	}

	err := c.ping(context.Background(), cfg.Mongo.URI)
	queueUpdate(c.app, func() {
		if err != nil {
			c.logf("Connection failed: %v", err)
			return
		}
		c.logf("Connection successful.")
	})
	if err == nil {
		c.refresh(cfg)
	}
}

func (c *Console) setDatabases(databases []database.DatabaseInfo) {
	c.databases = databases
	known := make(map[string]bool, len(databases))
	for _, db := range databases {
		known[db.Name] = true
	}
	for name := range c.selected {
		if !known[name] {
			delete(c.selected, name)
		}
	}

	current := c.dbList.GetCurrentItem()
	c.dbList.Clear()
	if len(databases) == 0 {
		c.dbList.AddItem("No databases found", "", 0, nil)
		return
	}
	for i := range databases {
		c.dbList.AddItem(tview.Escape(c.itemLabel(i)), "", 0, nil)
	}
	if current < len(databases) {
		c.dbList.SetCurrentItem(current)
	}
}

func (c *Console) itemLabel(index int) string {
	db := c.databases[index]
	mark := "[ ]"
	if c.selected[db.Name] {
		mark = "[x]"
	}
	return fmt.Sprintf("%s %s (%s)", mark, db.Name, humanize.Bytes(uint64(db.SizeOnDisk)))
}

func (c *Console) toggle(index int) {
	if c.state.Running || index < 0 || index >= len(c.databases) {
		return
	}
	name := c.databases[index].Name
	c.selected[name] = !c.selected[name]
	c.dbList.SetItemText(index, tview.Escape(c.itemLabel(index)), "")
}

// selectedDatabases returns the checked names in list order.
func (c *Console) selectedDatabases() []string {
	var names []string
	for _, db := range c.databases {
		if c.selected[db.Name] {
			names = append(names, db.Name)
		}
	}
	return names
}

func (c *Console) startBackup() {
	if c.state.Running {
		return
	}
	cfg := c.currentConfig()
	if cfg.Mongo.URI == "" {
		c.logf("Enter a MongoDB URI first.")
		return
	}
	if len(cfg.Backup.Databases) == 0 {
		c.logf("Select at least one database with space before starting.")
		return
	}

	c.state.Running = true
	events := c.newPipeline(cfg, c.log).Start(context.Background(), cfg.Backup.Databases)
	go func() {
		for ev := range events {
			ev := ev
			queueUpdate(c.app, func() { c.handleEvent(ev) })
		}
	}()
}

func (c *Console) handleEvent(ev backup.Event) {
	c.appendLine(c.state.Apply(ev))
	c.gauge.SetText(gaugeText(c.state.Progress(), c.state.CollectionsDone, c.state.Collections, gaugeWidth))
	if ev.Kind == backup.RunFinished {
		title, message, _ := c.state.Outcome()
		c.setOutcome(title, message)
		return
	}
	c.status.SetText(tview.Escape(c.state.Status))
}

func (c *Console) setOutcome(title, message string) {
	c.status.SetText(fmt.Sprintf("[::b]%s:[-:-:-] %s", tview.Escape(title), tview.Escape(message)))
}

// quietPipeline keeps mongoexport output off the terminal tview is drawing on.
func quietPipeline(cfg *config.Config, log *logger.Logger) *backup.Pipeline {
	quiet := *cfg
	quiet.Verbose = false
	return backup.NewService(&quiet, log)
}

func (c *Console) logf(format string, args ...interface{}) {
	c.appendLine(c.state.Logf(format, args...))
}

func (c *Console) appendLine(line string) {
	if c.logView.GetText(false) != "" {
		fmt.Fprint(c.logView, "\n")
	}
	fmt.Fprint(c.logView, line)
	c.logView.ScrollToEnd()
}

// gaugeText draws a fixed-width textual progress bar.
func gaugeText(fraction float64, done, total, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(width))
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", width-filled)
	return fmt.Sprintf("[%s] %3.0f%%  %d/%d", bar, fraction*100, done, total)
}
