package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"

	"github.com/versefold/corpse/internal/config"
	"github.com/versefold/corpse/internal/engine"
	"github.com/versefold/corpse/internal/game"
	"github.com/versefold/corpse/internal/storage/sqlite"
	"github.com/versefold/corpse/internal/ws"
)

const version = "v1.0.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`corpse - Exquisite Corpse game server

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)

Environment Variables:
  PORT            Port to listen on (default: 8080)
  DB_PATH         SQLite database path (default: ./corpse.db)
  PLAYERS         Participants per session (default: 2)
  WORDS_PER_TURN  Words required per turn (default: 6)
  WINDOW_SIZE     Trailing words visible to the next writer (default: 1)
  MAX_TURNS       Turns before a poem completes, 0 = unlimited (default: 8)
  IDLE_TIMEOUT    Abandon sessions idle this long, 0 = never (default: 0)
  SWEEP_INTERVAL  How often to check for idle sessions (default: 5m)
`, os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("corpse %s\n", version)
		return
	}

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zerologlog.Logger = zerologlog.Output(cw)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal(err)
	}
	port := *portFlag
	if port == "" {
		port = cfg.Port
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	defaults := game.Config{
		Players:      cfg.Players,
		WordsPerTurn: cfg.WordsPerTurn,
		WindowSize:   cfg.WindowSize,
		MaxTurns:     cfg.MaxTurns,
	}

	gw := ws.New()
	eng := engine.New(store, gw, defaults)
	gw.SetEngine(eng)

	loaded, err := eng.Load(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	zerologlog.Info().Int("sessions", loaded).Msg("registry restored")

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		status := c.Writer.Status()
		dur := time.Since(start)
		zerologlog.Info().Str("path", path).Int("status", status).Dur("dur", dur).Msg("http")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})
	r.GET("/api/stats", func(c *gin.Context) {
		total, open := eng.Stats()
		c.JSON(http.StatusOK, gin.H{"sessions": total, "openSessions": open})
	})

	io := gw.Mount(r)
	defer io.Close()

	if cfg.IdleTimeout > 0 {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		go func() {
			for range ticker.C {
				eng.ExpireIdle(context.Background(), cfg.IdleTimeout)
			}
		}()
		zerologlog.Info().Dur("idleTimeout", cfg.IdleTimeout).Dur("interval", cfg.SweepInterval).Msg("idle sweeper enabled")
	}

	log.Printf("listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
