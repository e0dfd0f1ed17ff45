package main

import (
	"fmt"
	"os"

	"github.com/ghyeongl/freeze/engine"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	app, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "freeze: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	rootCmd := NewRootCmd(version, app)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "freeze: %v\n", err)
		os.Exit(1)
	}
}

// app wires the engine together once per invocation.
type app struct {
	cfg engine.Config
	mgr *engine.Manager

	closeDB func() error
}

func newApp() (*app, error) {
	cfg, err := engine.LoadConfig()
	if err != nil {
		return nil, err
	}
	if len(os.Args) > 1 && os.Args[1] == "mcp" {
		// stdout carries the MCP protocol stream; keep logs off it.
		engine.InitLoggerQuiet(cfg.LogDir)
	} else {
		engine.InitLogger(cfg.LogDir)
	}

	db, err := engine.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	cas, err := engine.NewCAS(cfg.StorageDir)
	if err != nil {
		db.Close()
		return nil, err
	}
	cas.CleanupTemp()

	return &app{
		cfg:     cfg,
		mgr:     engine.NewManager(engine.NewStore(db), cas),
		closeDB: db.Close,
	}, nil
}

func (a *app) Close() {
	if a.closeDB != nil {
		a.closeDB() //nolint:errcheck
	}
}
