package engine

import (
	"fmt"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the per-invocation configuration. It is loaded once and
// passed explicitly; the engine keeps no ambient global settings.
type Config struct {
	// StateDir is the per-user state directory (default ~/.freeze). The
	// metadata database, blob storage and logs all live under it so tool
	// state never pollutes tracked trees.
	StateDir   string
	DBPath     string
	StorageDir string
	LogDir     string

	// ListenAddr is the web front end bind address.
	ListenAddr string
}

// LoadConfig resolves configuration from defaults, an optional
// <state-dir>/config.yaml, and FREEZE_* environment variables.
func LoadConfig() (Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}

	v := viper.New()
	v.SetDefault("state_dir", filepath.Join(home, ".freeze"))
	v.SetDefault("listen_addr", "127.0.0.1:8421")
	v.SetDefault("log_to_files", true)

	v.SetEnvPrefix("FREEZE")
	v.AutomaticEnv()

	stateDir := v.GetString("state_dir")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(stateDir)
	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; anything else is a real problem.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	// state_dir may have been overridden by the config file itself.
	stateDir = v.GetString("state_dir")

	cfg := Config{
		StateDir:   stateDir,
		DBPath:     filepath.Join(stateDir, "data.db"),
		StorageDir: filepath.Join(stateDir, "storage"),
		ListenAddr: v.GetString("listen_addr"),
	}
	if v.GetBool("log_to_files") {
		cfg.LogDir = filepath.Join(stateDir, "logs")
	}
	return cfg, nil
}
