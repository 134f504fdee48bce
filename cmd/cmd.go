// Package cmd provides the canvas CLI commands.
//
// Commands:
//   - serve: HTTP API server with SSE streaming generation
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/koopa0/canvas/internal/log"
)

// Execute is the main entry point.
func Execute() error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

func runHelp() {
	fmt.Println("Canvas - streaming artifact engine for AI chat")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  canvas serve       Start the HTTP API server")
	fmt.Println("  canvas --version   Show version information")
	fmt.Println("  canvas --help      Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required for the gemini provider")
	fmt.Println("  DATABASE_URL       Optional: Postgres archive for artifact history")
	fmt.Println("  CANVAS_ADDR        Optional: listen address (default :8384)")
	fmt.Println("  DEBUG              Optional: enable debug logging")
	fmt.Println()
	fmt.Println("Learn more: https://github.com/koopa0/canvas")
}
