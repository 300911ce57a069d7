package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

var (
	serverURL      = flag.String("server", "ws://localhost:9210/ws", "OCPP server WebSocket URL")
	stationID      = flag.String("id", "EVP-001", "Station ID")
	apiKey         = flag.String("token", "", "Station API key (sent as Bearer token)")
	vendor         = flag.String("vendor", "EvPower", "Charge Point Vendor")
	model          = flag.String("model", "SimulatorV1", "Charge Point Model")
	serial         = flag.String("serial", "SIM001", "Serial Number")
	firmware       = flag.String("firmware", "1.0.0", "Firmware Version")
	powerKw        = flag.Float64("power", 22.0, "Charge power (kW)")
	connectorCount = flag.Int("connectors", 2, "Number of connectors")
	interactive    = flag.Bool("interactive", false, "Enable interactive mode")
	verbose        = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	// Setup logger
	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Create simulator config
	config := &SimulatorConfig{
		ServerURL:       *serverURL,
		StationID:       *stationID,
		APIKey:          *apiKey,
		Vendor:          *vendor,
		Model:           *model,
		SerialNumber:    *serial,
		FirmwareVersion: *firmware,
		ConnectorCount:  *connectorCount,
		PowerKw:         *powerKw,
	}

	// Create and start simulator
	simulator := NewSimulator(config, logger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down simulator...")
		simulator.Stop()
		os.Exit(0)
	}()

	// Connect to server
	if err := simulator.Connect(); err != nil {
		logger.Fatal("Failed to connect to server", zap.Error(err))
	}

	// Start the simulator
	if *interactive {
		runInteractiveMode(simulator)
	} else {
		// Run in background mode
		fmt.Printf("OCPP Station Simulator started\n")
		fmt.Printf("  ID: %s\n", *stationID)
		fmt.Printf("  Server: %s\n", *serverURL)
		fmt.Println("\nPress Ctrl+C to stop")

		// Keep running
		select {}
	}
}

func runInteractiveMode(sim *Simulator) {
	fmt.Println("\nOCPP Station Simulator - Interactive Mode")
	fmt.Println("=========================================")
	fmt.Println("Commands:")
	fmt.Println("  start <connector> [idTag]  - Start charging on connector")
	fmt.Println("  stop                       - Stop current charging")
	fmt.Println("  status <connector> <state> - Set connector status (Available/Charging/Faulted)")
	fmt.Println("  meter <value>              - Send meter value (Wh)")
	fmt.Println("  heartbeat                  - Send heartbeat")
	fmt.Println("  fault <connector>          - Simulate fault on connector")
	fmt.Println("  quit                       - Exit simulator")
	fmt.Println("")

	sim.RunInteractive()
}
