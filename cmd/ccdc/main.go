package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/chrissnell/ccdc/internal/app"
	"github.com/chrissnell/ccdc/internal/log"
	"github.com/chrissnell/ccdc/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "ccdc.yaml", "Path to configuration source:\n\t\t\t  YAML: ccdc.yaml\n\t\t\t  SQLite: ccdc.db\n\t\t\t  Use 'config-convert' tool to convert YAML→SQLite")
	cfgBackend := flag.String("config-backend", "yaml", "Configuration backend type: 'yaml' for YAML files, 'sqlite' for SQLite databases")
	row := flag.Int("row", -1, "Process only this row (requires -col)")
	col := flag.Int("col", -1, "Process only this column (requires -row)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ccdc %s\n", version)
		os.Exit(0)
	}

	if (*row < 0) != (*col < 0) {
		fmt.Fprintln(os.Stderr, "-row and -col must be given together")
		os.Exit(2)
	}

	provider, err := openProvider(*cfgFile, *cfgBackend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open configuration: %v\n", err)
		os.Exit(1)
	}
	defer provider.Close()

	run, err := provider.GetRunConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config file. Did you pass the -config flag? Run with -h for help: %v\n", err)
		os.Exit(1)
	}

	// Set up logging
	if err := log.Init(*debug || run.Verbose); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var opts []app.Option
	if *row >= 0 {
		opts = append(opts, app.WithPixel(*row, *col))
	}

	application := app.New(provider, log.Named("ccdc"), opts...)
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		log.Sync()
		os.Exit(1)
	}
}

func openProvider(cfgFile, cfgBackend string) (config.ConfigProvider, error) {
	filename, _ := filepath.Abs(cfgFile)

	switch cfgBackend {
	case "yaml":
		return config.NewYAMLProvider(filename), nil
	case "sqlite":
		provider, err := config.NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", cfgBackend)
	}
}
