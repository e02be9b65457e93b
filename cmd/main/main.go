package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const usageText = `Usage: markov-llm [-config config.json] <command> [flags]

Commands:
  train     train a model on a text corpus
  generate  generate text from a model
  complete  continue a sentence with a model
  clean     strip Project Gutenberg boilerplate from a book
  stats     show statistics for one model or the whole database
  export    write a model as JSON
  import    store a model from JSON
  serve     run the HTTP API

Run "markov-llm <command> -h" for the flags of a command.
`

func main() {
	configPath := flag.String("config", "./config.json", "path to the JSON configuration file")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	baseLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	command, args := flag.Arg(0), flag.Args()[1:]
	if command == "serve" {
		serve(*configPath, baseLogger)
		return
	}

	if err := runCommand(*configPath, command, args, os.Stdout); err != nil {
		baseLogger.Error("Command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

// serve runs the API server until an OS signal or a shutdown request stops
// it, starting it again after each restart request.
func serve(configPath string, baseLogger *slog.Logger) {
	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan // Wait for a signal
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(configPath, actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
			break
		}

		if action == actionRestart {
			baseLogger.Info("--- Server Restarting ---")
			continue
		}
		break
	}

	baseLogger.Info("markov-llm has shut down.")
}
