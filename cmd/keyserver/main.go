// Package main provides the key distribution server
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zephyrmesh/zephyr-node/pkg/keyserver"
	"github.com/zephyrmesh/zephyr-node/pkg/storage"
)

func main() {
	// Parse command line flags
	port := flag.Int("port", 8420, "HTTP API port")
	dbPath := flag.String("db", "./zephyr-keys.db", "Path to the key database")
	enableCORS := flag.Bool("cors", true, "Enable CORS headers")
	rateLimit := flag.Int("rate-limit", 120, "Rate limit (requests per minute)")

	flag.Parse()

	fmt.Println("🚀 Zephyr Key Server")
	fmt.Println("====================")
	fmt.Println()

	// Open key database
	fmt.Printf("💾 Opening key database at %s...\n", *dbPath)
	db, err := storage.NewSessionDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	// Create HTTP API server
	config := &keyserver.Config{
		Port:       *port,
		EnableCORS: *enableCORS,
		RateLimit:  *rateLimit,
	}

	server, err := keyserver.NewServer(db, config)
	if err != nil {
		log.Fatalf("Failed to create key server: %v", err)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		if err := server.Start(ctx); err != nil {
			log.Printf("Key server error: %v", err)
		}
	}()

	fmt.Println()
	fmt.Println("✅ Server is ready!")
	fmt.Println()
	fmt.Println("API Endpoints:")
	fmt.Printf("  POST http://localhost:%d/api/v1/keys/:deviceID\n", *port)
	fmt.Printf("  POST http://localhost:%d/api/v1/keys/:deviceID/claim\n", *port)
	fmt.Printf("  GET  http://localhost:%d/api/v1/keys/:deviceID/count\n", *port)
	fmt.Printf("  GET  http://localhost:%d/api/v1/keys/:deviceID/identity\n", *port)
	fmt.Printf("  GET  http://localhost:%d/health\n", *port)
	fmt.Println()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	<-sigCh

	fmt.Println("\n🛑 Shutting down...")

	cancel() // Stop the API server
	<-serverDone

	if err := db.Close(); err != nil {
		fmt.Printf("Error closing database: %v\n", err)
	}

	fmt.Println("👋 Goodbye!")
}
