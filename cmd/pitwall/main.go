// Command pitwall receives racing-game UDP telemetry, keeps the live race
// state and serves it over HTTP and on the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/banshee-data/pitwall/internal/api"
	"github.com/banshee-data/pitwall/internal/config"
	"github.com/banshee-data/pitwall/internal/console"
	"github.com/banshee-data/pitwall/internal/telemetry"
	"github.com/banshee-data/pitwall/internal/telemetry/network"
	"github.com/banshee-data/pitwall/internal/telemetry/racestate"
	"github.com/banshee-data/pitwall/internal/version"
)

var (
	configPath   = flag.String("config", "", "Path to a JSON settings file (defaults are used when empty)")
	udpPort      = flag.Int("port", 0, "UDP telemetry port (overrides settings)")
	listen       = flag.String("listen", "", "HTTP listen address (overrides settings)")
	replayPath   = flag.String("replay", "", "Replay a pcap/pcapng capture instead of listening")
	replaySpeed  = flag.Float64("speed", 1.0, "Replay speed multiplier (0 replays as fast as possible)")
	debugPackets = flag.Int("debug-packets", -1, "Log the first N decoded packets (overrides settings)")
	showConsole  = flag.Bool("console", true, "Redraw standings on stdout")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// exitCode is set by any routine whose failure should end the process with
// a non-zero status.
var exitCode atomic.Int32

// loadSettings reads the settings file, if any, and applies flag overrides.
func loadSettings(path string, port int, listenAddr string) (*config.Settings, error) {
	settings := config.EmptySettings()
	if path != "" {
		var err error
		settings, err = config.LoadSettings(path)
		if err != nil {
			return nil, err
		}
	}
	if port != 0 {
		if settings.Network == nil {
			settings.Network = &config.NetworkSettings{}
		}
		settings.Network.UDPTelemetryPort = &port
	}
	if listenAddr != "" {
		if settings.HTTP == nil {
			settings.HTTP = &config.HTTPSettings{}
		}
		settings.HTTP.Listen = &listenAddr
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return settings, nil
}

// newPipeline wires the decoder, race state and snapshot store.
func newPipeline(settings *config.Settings, debug int) (*network.Pipeline, *racestate.Store) {
	state := racestate.New(racestate.Options{
		TrackThreshold: settings.GetDedupThreshold(),
		MinDistance:    settings.GetMinDistance(),
	})
	store := racestate.NewStore(state.Snapshot())
	pipeline := network.NewPipeline(state, store, telemetry.NewPacketStats())

	if debug < 0 {
		debug = settings.GetDebugPackets()
	}
	if debug > 0 {
		pipeline.Decoder.SetDebug(true)
		pipeline.Decoder.SetDebugPackets(debug)
	}
	return pipeline, store
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("pitwall", version.String())
		return
	}

	settings, err := loadSettings(*configPath, *udpPort, *listen)
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	pipeline, store := newPipeline(settings, *debugPackets)
	log.Printf("pitwall %s session %s", version.String(), store.Load().SessionID)

	if addr, port, ok := settings.GetForward(); ok {
		fwd, err := network.NewPacketForwarder(addr, port, pipeline.Stats, settings.GetStatsInterval())
		if err != nil {
			log.Fatalf("failed to create packet forwarder: %v", err)
		}
		defer fwd.Close()
		pipeline.Forwarder = fwd
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ingestion routine: the only writer of the race state
	wg.Add(1)
	go func() {
		defer wg.Done()
		if *replayPath != "" {
			if pipeline.Forwarder != nil {
				pipeline.Forwarder.Start(ctx)
			}
			res, err := network.ReplayPCAP(ctx, *replayPath, network.ReplayConfig{
				UDPPort:         settings.GetUDPPort(),
				SpeedMultiplier: *replaySpeed,
			}, pipeline)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("capture replay failed: %v", err)
				exitCode.Store(1)
				stop()
				return
			}
			log.Printf("replayed %d datagrams; serving final state until interrupted", res.Datagrams)
			return
		}

		listener := network.NewListener(network.ListenerConfig{
			Address:       settings.GetListenAddress(),
			RcvBuf:        settings.GetReceiveBufferBytes(),
			PollInterval:  settings.GetPollInterval(),
			StatsInterval: settings.GetStatsInterval(),
			Pipeline:      pipeline,
		})
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("telemetry listener failed: %v", err)
			exitCode.Store(1)
			stop()
		}
		log.Print("ingestion routine terminated")
	}()

	if *showConsole {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := console.New(console.Config{
				Store:      store,
				Out:        os.Stdout,
				FPS:        settings.GetDisplayFPS(),
				SpeedUnits: settings.GetSpeedUnits(),
			})
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("console failed: %v", err)
			}
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		srv := api.NewServer(api.Config{
			Store:      store,
			StaleAfter: settings.GetStaleAfter(),
			Width:      settings.GetDisplayWidth(),
			Height:     settings.GetDisplayHeight(),
			Padding:    settings.GetPaddingFraction(),
			SpeedUnits: settings.GetSpeedUnits(),
		})
		mux := srv.ServeMux()
		srv.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:              settings.GetHTTPListen(),
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			log.Printf("HTTP server listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				exitCode.Store(1)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
	if code := exitCode.Load(); code != 0 {
		os.Exit(int(code))
	}
}
