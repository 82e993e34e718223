package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/buildinfo"
	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/database"
	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/metrics"
	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/server"
)

var (
	configPath     = flag.String("config", "", "Path to a YAML config file")
	neo4jURI       = flag.String("neo4j-uri", "", "Bolt URL (overrides NEO4J_URI)")
	neo4jDatabase  = flag.String("neo4j-database", "", "Neo4j database name (overrides NEO4J_DATABASE)")
	gremlinURL     = flag.String("gremlin-url", "", "Gremlin Server WebSocket URL (overrides GREMLIN_URL)")
	gremlinSource  = flag.String("gremlin-source", "", "Traversal source name (overrides GREMLIN_TRAVERSAL_SOURCE)")
	schemaURL      = flag.String("schema-url", "", "PuppyGraph schema endpoint (overrides PUPPYGRAPH_SCHEMA_URL)")
	connectTimeout = flag.Duration("connect-timeout", 0, "Timeout for establishing backend connections")
	transport      = flag.String("transport", "stdio", "Transport to use: stdio or sse")
	addr           = flag.String("addr", ":8080", "Address to listen on when using SSE transport")
	sseEndpoint    = flag.String("sse-endpoint", "/sse", "SSE endpoint path when using SSE transport")
	logLevel       = flag.String("log-level", "info", "Log level: debug, info, warn or error")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("mcp-puppygraph-go %s (%s, built %s)\n", buildinfo.Version, buildinfo.Revision, buildinfo.BuildDate)
		return
	}

	// stdout carries the stdio transport; logs go to stderr
	lvl, err := parseLevel(*logLevel)
	if err != nil {
		log.Fatalf("%v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// checked before any backend is dialed
	if err := validateTransport(*transport); err != nil {
		log.Fatalf("%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, closing server...")
		cancel()
	}()

	config, err := loadConfig(*configPath, os.Getenv)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	overrides{
		neo4jURI:       *neo4jURI,
		neo4jDatabase:  *neo4jDatabase,
		gremlinURL:     *gremlinURL,
		gremlinSource:  *gremlinSource,
		schemaURL:      *schemaURL,
		connectTimeout: *connectTimeout,
	}.apply(config)
	config.Logger = logger

	// Initialize metrics (noop if disabled)
	metrics.InitFromEnv()

	db, err := database.NewDBManager(config)
	if err != nil {
		log.Fatalf("Failed to create database manager: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error closing connections: %v", err)
		}
	}()

	// best effort: failures are reported by the status tool and retried per request
	db.Connect(ctx)
	st := db.Status()
	log.Printf("Backends: neo4j connected=%t, gremlin connected=%t", st.Neo4jConnected, st.GremlinConnected)

	mcpServer := server.NewMCPServer(db)

	log.Println("Starting MCP PuppyGraph server...")
	switch *transport {
	case "stdio":
		go func() {
			if err := mcpServer.Run(ctx); err != nil {
				log.Printf("Server error: %v", err)
			}
			// client went away
			cancel()
		}()
	case "sse":
		go func() {
			if err := mcpServer.RunSSE(ctx, *addr, *sseEndpoint); err != nil {
				log.Printf("SSE server error: %v", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()

	log.Println("Server stopped")
}
