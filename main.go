package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bioarchive/mss/config"
	"github.com/bioarchive/mss/journal"
	"github.com/bioarchive/mss/repository"
	"github.com/bioarchive/mss/services"
)

// Prints usage info.
func usage() {
	fmt.Fprintf(os.Stderr, "%s: usage:\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "%s <config_file>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "See README.md for details on config files.\n")
	os.Exit(1)
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	// The only argument is the configuration filename.
	if len(os.Args) < 2 {
		usage()
	}
	configFile := os.Args[1]

	// Read and load the configuration file.
	slog.Info(fmt.Sprintf("Reading configuration from '%s'...", configFile))
	yamlData, err := os.ReadFile(configFile)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't read %s: %s", configFile, err.Error()))
		os.Exit(1)
	}
	if err := config.Init(yamlData); err != nil {
		slog.Error(fmt.Sprintf("Couldn't initialize the configuration: %s", err.Error()))
		os.Exit(1)
	}

	// Open the publish journal, if one is configured.
	if err := journal.Init(); err != nil {
		slog.Error(fmt.Sprintf("Couldn't open the publish journal: %s", err.Error()))
		os.Exit(1)
	}

	// Connect to the repository and create the service.
	store, err := repository.New(context.Background(), config.Database.URL)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't connect to the database: %s", err.Error()))
		os.Exit(1)
	}
	service, err := services.NewMetadataService(store)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't create the service: %s", err.Error()))
		os.Exit(1)
	}

	// Start the service in a goroutine so it doesn't block.
	go func() {
		if err := service.Start(config.Service.Port); err != nil {
			slog.Error(err.Error())
		}
	}()

	// Intercept the SIGINT, SIGHUP, SIGTERM, and SIGQUIT signals, shutting down
	// the service as gracefully as possible if they are encountered.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	// Block till we receive one of the above signals.
	<-sigChan

	// Wait for connections to close until the deadline elapses.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	service.Shutdown(ctx)

	store.Close()
	if err := journal.Finalize(); err != nil {
		slog.Error(fmt.Sprintf("Couldn't close the publish journal: %s", err.Error()))
	}
	slog.Info("Shutting down")
}
