package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kadirbelkuyu/mongobackup/internal/app"
	"github.com/kadirbelkuyu/mongobackup/internal/config"
	"github.com/kadirbelkuyu/mongobackup/internal/profiles"
	"github.com/kadirbelkuyu/mongobackup/internal/ui/console"
	"github.com/kadirbelkuyu/mongobackup/internal/ui/desktop"
	"github.com/kadirbelkuyu/mongobackup/pkg/logger"
)

const appName = "MongoDB JSON Backup"

const asciiBanner = `
  _ __ ___   ___  _ __   __ _  ___ | |__   __ _  ___| | ___   _ _ __
 | '_ ' _ \ / _ \| '_ \ / _' |/ _ \| '_ \ / _' |/ __| |/ / | | | '_ \
 | | | | | | (_) | | | | (_| | (_) | |_) | (_| | (__|   <| |_| | |_) |
 |_| |_| |_|\___/|_| |_|\__, |\___/|_.__/ \__,_|\___|_|\_\\__,_| .__/
                        |___/                                   |_|
`

var rootCmd = &cobra.Command{
	Use:   "mongobackup",
	Short: "Export MongoDB databases to JSON files",
	Long: `Export every collection of one or more MongoDB databases into pretty-printed
JSON array files using mongoexport, from the command line, a guided prompt,
a terminal console or a desktop window.`,
	RunE: runInteractive,
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export the selected databases",
	Example: `  mongobackup backup --uri mongodb://localhost:27017 --databases shop,blog
  mongobackup backup --profile prod --backup-dir /srv/backups`,
	RunE: runBackup,
}

var listDbCmd = &cobra.Command{
	Use:   "list-databases",
	Short: "List databases available on the server",
	RunE:  runListDatabases,
}

var testConnCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Check that the server answers",
	RunE:  runTestConnection,
}

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Launch the guided interactive workflow",
	RunE:  runInteractive,
}

var desktopCmd = &cobra.Command{
	Use:   "desktop",
	Short: "Open the desktop backup window",
	RunE:  runDesktop,
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open the terminal backup console",
	RunE:  runConsole,
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage saved connection profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show saved profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfilesList,
}

var profilesSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save the current flags and environment as a profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesSave,
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesDelete,
}

var (
	configPath  string
	profileName string
	profilesDir string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flags.StringVar(&profileName, "profile", "", "Name of a saved profile to use")
	flags.StringVar(&profilesDir, "profiles-dir", app.DefaultConfigDir, "Directory holding saved profiles")
	flags.String("uri", "", "MongoDB connection string")
	flags.String("tools-path", config.DefaultToolsPath, "Directory containing the mongoexport binary")
	flags.String("backup-dir", config.DefaultBackupDir, "Directory that receives one folder per database")
	flags.Bool("show-system", false, "Include admin, config and local in database lists")
	flags.BoolP("verbose", "v", false, "Enable verbose logging and show mongoexport output")

	backupCmd.Flags().StringSlice("databases", nil, "Comma-separated database names to export")
	profilesSaveCmd.Flags().StringSlice("databases", nil, "Databases stored with the profile")

	profilesCmd.AddCommand(profilesListCmd, profilesSaveCmd, profilesDeleteCmd)
	rootCmd.AddCommand(backupCmd, listDbCmd, testConnCmd, interactiveCmd, desktopCmd, consoleCmd, profilesCmd)

	cobra.OnInitialize(func() {
		rootCmd.SilenceUsage = true
		rootCmd.SilenceErrors = true
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves flags, environment and --config, then fills anything
// still unset from --profile.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w", err)
	}

	if strings.TrimSpace(profileName) != "" {
		saved, err := profileManager().Load(profileName)
		if err != nil {
			return nil, fmt.Errorf("cannot load profile: %w", err)
		}
		cfg.Merge(saved)
	}

	return cfg, nil
}

func profileManager() *profiles.Manager {
	return profiles.NewManager(profilesDir)
}

func newService(cfg *config.Config) *app.Service {
	return app.NewService(logger.NewLogger(cfg.Verbose))
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	_, err = newService(cfg).Backup(cmd.Context(), cfg)
	return err
}

func runListDatabases(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return newService(cfg).ListDatabases(cmd.Context(), cfg)
}

func runTestConnection(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return newService(cfg).TestConnection(cmd.Context(), cfg)
}

func runInteractive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	application := app.NewApplication(os.Stdin, os.Stdout, cfg, profileManager(), newService(cfg), printBanner)
	application.OpenConsole = func(selected *config.Config) error {
		return console.Run(selected, logger.New(nil, selected.Verbose))
	}
	return application.RunInteractive(cmd.Context())
}

func runDesktop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return desktop.Run(cfg, profileManager())
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return console.Run(cfg, logger.New(nil, cfg.Verbose))
}

func runProfilesList(cmd *cobra.Command, args []string) error {
	list, err := profileManager().List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintf(out, "No profiles in %s\n", profileManager().Directory())
		return nil
	}

	fmt.Fprintf(out, "%-20s %-40s %-20s %s\n", "Name", "Server", "Databases", "Modified")
	fmt.Fprintln(out, strings.Repeat("-", 96))
	for _, p := range list {
		dbs := strings.Join(p.Databases, ",")
		if dbs == "" {
			dbs = "-"
		}
		fmt.Fprintf(out, "%-20s %-40s %-20s %s\n", p.Name, p.Server, dbs, humanize.Time(p.Modified))
	}
	return nil
}

func runProfilesSave(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}
	if !cfg.HasConnection() {
		return app.ErrMissingURI
	}

	profile, err := profileManager().Save(args[0], cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved profile %s to %s\n", profile.Name, profile.Path)
	return nil
}

func runProfilesDelete(cmd *cobra.Command, args []string) error {
	if err := profileManager().Delete(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %s\n", args[0])
	return nil
}

func printBanner() {
	fmt.Print(asciiBanner)
	fmt.Println(appName)
	fmt.Println(strings.Repeat("-", len(appName)))
}
