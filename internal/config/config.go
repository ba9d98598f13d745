package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBackupDir = "database_backup"
	DefaultMongoPort = 27017
	envPrefix        = "MONGOBACKUP"
)

// DefaultToolsPath is where the MongoDB Database Tools bundle is expected when
// nothing else is configured.
var DefaultToolsPath = filepath.Join("mongodb-database-tools", "bin")

type MongoConfig struct {
	URI          string `yaml:"uri,omitempty" mapstructure:"uri"`
	Host         string `yaml:"host,omitempty" mapstructure:"host"`
	Port         int    `yaml:"port,omitempty" mapstructure:"port"`
	Username     string `yaml:"username,omitempty" mapstructure:"username"`
	Password     string `yaml:"password,omitempty" mapstructure:"password"`
	AuthDatabase string `yaml:"auth_database,omitempty" mapstructure:"auth_database"`
}

type BackupConfig struct {
	Databases  []string `yaml:"databases,omitempty" mapstructure:"databases"`
	BackupDir  string   `yaml:"backup_dir,omitempty" mapstructure:"backup_dir"`
	ToolsPath  string   `yaml:"tools_path,omitempty" mapstructure:"tools_path"`
	ShowSystem bool     `yaml:"show_system_databases,omitempty" mapstructure:"show_system_databases"`
}

type Config struct {
	Mongo   MongoConfig  `yaml:"mongo" mapstructure:"mongo"`
	Backup  BackupConfig `yaml:"backup" mapstructure:"backup"`
	Verbose bool         `yaml:"-" mapstructure:"verbose"`
}

// LoadConfig reads a YAML file such as a saved profile.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"uri":         "mongo.uri",
	"databases":   "backup.databases",
	"backup-dir":  "backup.backup_dir",
	"tools-path":  "backup.tools_path",
	"show-system": "backup.show_system_databases",
	"verbose":     "verbose",
}

// Load resolves the effective configuration. Precedence from lowest to
// highest: built-in defaults, the optional YAML file at path, MONGOBACKUP_*
// environment variables, then flags that were explicitly set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("backup.backup_dir", DefaultBackupDir)
	v.SetDefault("backup.tools_path", DefaultToolsPath)
	v.SetDefault("mongo.port", DefaultMongoPort)
	v.SetDefault("verbose", false)

	envKeys := map[string]string{
		"mongo.uri":                    "URI",
		"mongo.host":                   "HOST",
		"mongo.port":                   "PORT",
		"mongo.username":               "USERNAME",
		"mongo.password":               "PASSWORD",
		"mongo.auth_database":          "AUTH_DATABASE",
		"backup.databases":             "DATABASES",
		"backup.backup_dir":            "BACKUP_DIR",
		"backup.tools_path":            "TOOLS_PATH",
		"backup.show_system_databases": "SHOW_SYSTEM_DATABASES",
		"verbose":                      "VERBOSE",
	}
	for key, name := range envKeys {
		if err := v.BindEnv(key, envPrefix+"_"+name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", name, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || os.IsNotExist(err) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Mongo.URI = strings.TrimSpace(c.Mongo.URI)
	if c.Mongo.Port == 0 {
		c.Mongo.Port = DefaultMongoPort
	}
	if strings.TrimSpace(c.Backup.BackupDir) == "" {
		c.Backup.BackupDir = DefaultBackupDir
	}
	if strings.TrimSpace(c.Backup.ToolsPath) == "" {
		c.Backup.ToolsPath = DefaultToolsPath
	}
	c.Backup.Databases = NormalizeDatabases(c.Backup.Databases)
}

// Merge fills unset fields of c from other. Built-in defaults count as unset.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if c.Mongo.URI == "" && c.Mongo.Host == "" {
		c.Mongo = other.Mongo
	}
	if len(c.Backup.Databases) == 0 {
		c.Backup.Databases = append([]string(nil), other.Backup.Databases...)
	}
	if c.Backup.BackupDir == "" || c.Backup.BackupDir == DefaultBackupDir {
		if other.Backup.BackupDir != "" {
			c.Backup.BackupDir = other.Backup.BackupDir
		}
	}
	if c.Backup.ToolsPath == "" || c.Backup.ToolsPath == DefaultToolsPath {
		if other.Backup.ToolsPath != "" {
			c.Backup.ToolsPath = other.Backup.ToolsPath
		}
	}
	c.Backup.ShowSystem = c.Backup.ShowSystem || other.Backup.ShowSystem
}

// HasConnection reports whether enough is configured to reach a server.
func (c *Config) HasConnection() bool {
	return c.Mongo.URI != "" || strings.TrimSpace(c.Mongo.Host) != ""
}

func (c *Config) GetMongoURI() string {
	if c.Mongo.URI != "" {
		return c.Mongo.URI
	}

	host := c.Mongo.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Mongo.Port
	if port == 0 {
		port = DefaultMongoPort
	}

	var credentials string
	if c.Mongo.Username != "" {
		credentials = url.QueryEscape(c.Mongo.Username)
		if c.Mongo.Password != "" {
			credentials = fmt.Sprintf("%s:%s", credentials, url.QueryEscape(c.Mongo.Password))
		}
		credentials += "@"
	}

	uri := fmt.Sprintf("mongodb://%s%s:%d", credentials, host, port)

	if c.Mongo.AuthDatabase != "" {
		uri = fmt.Sprintf("%s/?authSource=%s", uri, url.QueryEscape(c.Mongo.AuthDatabase))
	}

	return uri
}

// ExportToolPath returns the full path of the mongoexport binary.
func (c *Config) ExportToolPath() string {
	return ToolPath(c.Backup.ToolsPath, "mongoexport")
}

// ToolPath joins a tool name onto the tools directory, adding the platform
// executable suffix.
func ToolPath(toolsDir, name string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		name += ".exe"
	}
	if strings.TrimSpace(toolsDir) == "" {
		return name
	}
	return filepath.Join(toolsDir, name)
}

// NormalizeDatabases trims names, drops blanks and splits any comma lists that
// slipped through as a single value.
func NormalizeDatabases(names []string) []string {
	var out []string
	for _, raw := range names {
		for _, part := range strings.Split(raw, ",") {
			name := strings.TrimSpace(part)
			if name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}
