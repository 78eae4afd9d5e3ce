package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/efecan0/trading-gateway-go/internal/config"
	"github.com/efecan0/trading-gateway-go/internal/event"
	"github.com/efecan0/trading-gateway-go/internal/logger"
	"github.com/efecan0/trading-gateway-go/internal/server"
)

// Usage: trading-gateway [port] [host]
func main() {
	_, err := config.ReadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error occured while reading config %v\n", err)
		os.Exit(1)
	}

	port := 0
	host := ""
	if len(os.Args) > 1 {
		port, err = strconv.Atoi(os.Args[1])
		if err != nil || port <= 0 || port > 65535 {
			fmt.Fprintf(os.Stderr, "Invalid port %q\n", os.Args[1])
			os.Exit(1)
		}
	}
	if len(os.Args) > 2 {
		host = os.Args[2]
	}
	config.SetOverrides(port, host)

	loggerCallback := logger.Init()
	logger.Debug("Application initializing...")

	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)

	cfg, _ := config.GetConfig()
	if err := server.StartServer(cfg); err != nil {
		logger.FatalF("Trading gateway start error: %v", err)
		os.Exit(1)
	}
	// Serve returns as soon as the cleaner shuts the endpoint down; the
	// cleaner runs the remaining stages and exits the process itself.
	select {}
}
