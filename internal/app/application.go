package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kadirbelkuyu/mongobackup/internal/config"
	"github.com/kadirbelkuyu/mongobackup/internal/profiles"
	"github.com/kadirbelkuyu/mongobackup/pkg/interactive"
)

const DefaultConfigDir = "configs"

type Application struct {
	reader         *bufio.Reader
	out            io.Writer
	printBanner    func()
	base           *config.Config
	profileManager *profiles.Manager
	service        *Service

	// OpenConsole starts the terminal console for a configuration. Nil hides
	// the menu entry.
	OpenConsole func(cfg *config.Config) error
}

// NewApplication builds the guided workflow. base carries values resolved
// from flags, environment and config file and is used to prefill prompts.
func NewApplication(r io.Reader, out io.Writer, base *config.Config, manager *profiles.Manager, service *Service, printBanner func()) *Application {
	if r == nil {
		r = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if base == nil {
		base = &config.Config{}
	}
	if manager == nil {
		manager = profiles.NewManager(DefaultConfigDir)
	}
	if service == nil {
		service = NewService(nil)
	}

	reader, ok := r.(*bufio.Reader)
	if !ok {
		reader = bufio.NewReader(r)
	}

	return &Application{
		reader:         reader,
		out:            out,
		printBanner:    printBanner,
		base:           base,
		profileManager: manager,
		service:        service,
	}
}

func (a *Application) RunInteractive(ctx context.Context) error {
	if a.printBanner != nil {
		a.printBanner()
	}
	fmt.Fprintln(a.out, "Interactive mode is ready. Press Ctrl+C or choose Exit to leave.")

	for {
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Select an operation:")
		fmt.Fprintln(a.out, "  1) Back up databases to JSON")
		fmt.Fprintln(a.out, "  2) List databases")
		fmt.Fprintln(a.out, "  3) Test connection")
		if a.OpenConsole != nil {
			fmt.Fprintln(a.out, "  4) Open the terminal console")
		}
		fmt.Fprintln(a.out, "  q) Exit")

		fmt.Fprint(a.out, "\nChoice: ")
		choice, err := a.readLine()
		if err != nil {
			return a.exit(err)
		}

		var actionErr error
		switch strings.ToLower(choice) {
		case "1", "backup":
			actionErr = a.handleBackup(ctx)
		case "2", "list":
			actionErr = a.handleList(ctx)
		case "3", "test":
			actionErr = a.handleTest(ctx)
		case "4", "console":
			if a.OpenConsole == nil {
				fmt.Fprintln(a.out, "Invalid selection. Try again.")
				continue
			}
			actionErr = a.handleConsole()
		case "q", "5", "exit", "quit":
			return a.exit(nil)
		default:
			fmt.Fprintln(a.out, "Invalid selection. Try again.")
			continue
		}

		if actionErr != nil {
			if errors.Is(actionErr, io.EOF) {
				return a.exit(actionErr)
			}
			fmt.Fprintf(a.out, "Operation failed: %v\n", actionErr)
		}
	}
}

func (a *Application) exit(err error) error {
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Exiting interactive mode.")
	return nil
}

func (a *Application) handleBackup(ctx context.Context) error {
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Back up databases to JSON")

	cfg, err := a.loadOrPromptConfig()
	if err != nil {
		return err
	}

	databases, err := a.service.Databases(ctx, cfg)
	if err != nil {
		return err
	}

	selector := interactive.NewDatabaseSelector(a.reader, a.out)
	names, err := selector.SelectDatabases(databases)
	if err != nil {
		return err
	}

	if !selector.ConfirmAction("backup", strings.Join(names, ", ")) {
		fmt.Fprintln(a.out, "Operation cancelled.")
		return nil
	}

	cfg.Backup.Databases = names
	_, err = a.service.Backup(ctx, cfg)
	return err
}

func (a *Application) handleList(ctx context.Context) error {
	cfg, err := a.loadOrPromptConfig()
	if err != nil {
		return err
	}
	return a.service.ListDatabases(ctx, cfg)
}

func (a *Application) handleTest(ctx context.Context) error {
	cfg, err := a.loadOrPromptConfig()
	if err != nil {
		return err
	}
	return a.service.TestConnection(ctx, cfg)
}

func (a *Application) handleConsole() error {
	cfg, err := a.loadOrPromptConfig()
	if err != nil {
		return err
	}
	return a.OpenConsole(cfg)
}

func (a *Application) loadOrPromptConfig() (*config.Config, error) {
	fmt.Fprintln(a.out, "\nConfigure connection")

	if cfg, ok, err := a.selectProfile(); err != nil {
		return nil, err
	} else if ok {
		cfg.Verbose = a.base.Verbose
		return cfg, nil
	}

	cfg, err := a.promptManualConfig()
	if err != nil {
		return nil, err
	}

	if err := a.persistConfig(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, err
		}
		fmt.Fprintf(a.out, "Warning: failed to save profile: %v\n", err)
	}
	return cfg, nil
}

func (a *Application) promptManualConfig() (*config.Config, error) {
	cfg := &config.Config{
		Mongo:   a.base.Mongo,
		Backup:  a.base.Backup,
		Verbose: a.base.Verbose,
	}

	uri, err := a.promptStringWithDefault("MongoDB URI", cfg.Mongo.URI)
	if err != nil {
		return nil, err
	}
	cfg.Mongo.URI = uri

	toolsPath, err := a.promptStringWithDefault("MongoDB Database Tools bin directory", withDefault(cfg.Backup.ToolsPath, config.DefaultToolsPath))
	if err != nil {
		return nil, err
	}
	cfg.Backup.ToolsPath = toolsPath

	backupDir, err := a.promptStringWithDefault("Backup directory", withDefault(cfg.Backup.BackupDir, config.DefaultBackupDir))
	if err != nil {
		return nil, err
	}
	cfg.Backup.BackupDir = backupDir

	return cfg, nil
}

func (a *Application) selectProfile() (*config.Config, bool, error) {
	list, err := a.profileManager.List()
	if err != nil {
		return nil, false, err
	}
	if len(list) == 0 {
		return nil, false, nil
	}

	for {
		fmt.Fprintln(a.out, "Saved profiles:")
		for i, profile := range list {
			fmt.Fprintf(a.out, "  %d) %s (%s)\n", i+1, profile.Name, profile.Server)
		}
		fmt.Fprintln(a.out, "  n) Enter connection details")

		fmt.Fprint(a.out, "Select a profile (number) or 'n': ")
		choice, err := a.readLine()
		if err != nil {
			return nil, false, err
		}

		choice = strings.ToLower(choice)
		if choice == "n" || choice == "new" {
			return nil, false, nil
		}

		index, err := strconv.Atoi(choice)
		if err != nil || index < 1 || index > len(list) {
			fmt.Fprintln(a.out, "Please choose a valid option.")
			continue
		}

		cfg, err := config.LoadConfig(list[index-1].Path)
		if err != nil {
			fmt.Fprintf(a.out, "Failed to load %s: %v\n", list[index-1].Name, err)
			continue
		}
		return cfg, true, nil
	}
}

func (a *Application) persistConfig(cfg *config.Config) error {
	save, err := a.promptYesNo("Save this connection as a profile?", false)
	if err != nil || !save {
		return err
	}

	name, err := a.promptStringWithDefault("Profile name", "mongo-"+time.Now().Format("20060102_150405"))
	if err != nil {
		return err
	}

	profile, err := a.profileManager.Save(name, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved profile %s.\n", profile.Name)
	return nil
}

func (a *Application) promptYesNo(question string, defaultValue bool) (bool, error) {
	suffix := "(y/N)"
	if defaultValue {
		suffix = "(Y/n)"
	}

	for {
		fmt.Fprintf(a.out, "%s %s ", question, suffix)
		input, err := a.readLine()
		if err != nil {
			return false, err
		}

		switch strings.ToLower(input) {
		case "":
			return defaultValue, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		default:
			fmt.Fprintln(a.out, "Please answer with y or n.")
		}
	}
}

func (a *Application) promptStringWithDefault(label, defaultValue string) (string, error) {
	for {
		if defaultValue != "" {
			fmt.Fprintf(a.out, "%s [%s]: ", label, defaultValue)
		} else {
			fmt.Fprintf(a.out, "%s: ", label)
		}

		input, err := a.readLine()
		if err != nil {
			return "", err
		}

		if input == "" {
			if defaultValue != "" {
				return defaultValue, nil
			}
			fmt.Fprintln(a.out, "Please provide a value.")
			continue
		}
		return input, nil
	}
}

func (a *Application) readLine() (string, error) {
	line, err := a.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func withDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
