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
	cfgFile := flag.String("config", "ccdc.yaml", "Path to the YAML or SQLite configuration source")
	cfgBackend := flag.String("config-backend", "yaml", "Configuration backend type: 'yaml' or 'sqlite'")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ccdc-server %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	filename, _ := filepath.Abs(*cfgFile)
	var provider config.ConfigProvider
	switch *cfgBackend {
	case "yaml":
		provider = config.NewYAMLProvider(filename)
	case "sqlite":
		p, err := config.NewSQLiteProvider(filename)
		if err != nil {
			log.Fatalf("error creating SQLite provider: %v", err)
		}
		provider = p
	default:
		log.Fatalf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", *cfgBackend)
	}
	defer provider.Close()

	if err := app.New(provider, log.Named("ccdc-server")).Serve(context.Background()); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}
