// Command client runs a headless session client: it connects to the
// session server, creates a room, and logs state changes. Useful for
// smoke-testing a server without a device in hand.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/kimk1029/policevsthieves/internal/config"
	"github.com/kimk1029/policevsthieves/internal/game"
	"github.com/kimk1029/policevsthieves/internal/geo"
	"github.com/kimk1029/policevsthieves/internal/identity"
	"github.com/kimk1029/policevsthieves/internal/protocol"
	"github.com/kimk1029/policevsthieves/internal/router"
	"github.com/kimk1029/policevsthieves/internal/session"
	"github.com/kimk1029/policevsthieves/internal/state"
	"github.com/kimk1029/policevsthieves/internal/transport"
	"github.com/kimk1029/policevsthieves/internal/voice"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// logNotifier surfaces alert-style events to the log; a real UI would
// vibrate or toast instead.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) ProximityAlert(d float64) { n.logger.Info("proximity alert", "distance_m", d) }
func (n logNotifier) ProximityCleared()        { n.logger.Info("proximity cleared") }
func (n logNotifier) CaptureOutcome(captured bool, targetID string) {
	n.logger.Info("capture result", "captured", captured, "target", targetID)
}
func (n logNotifier) JailOutcome(jailed bool, playerID string) {
	n.logger.Info("jail result", "jailed", jailed, "player", playerID)
}
func (n logNotifier) CommandFailed(command, message string) {
	n.logger.Warn("command rejected", "command", command, "message", message)
}

func run(ctx context.Context, stdout io.Writer) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	ids, err := identity.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening identity store: %w", err)
	}
	defer ids.Close()

	playerID, err := ids.PlayerID(ctx)
	if err != nil {
		return fmt.Errorf("resolving player id: %w", err)
	}
	logger.Info("local identity", "playerId", playerID)

	room := state.NewRoomStore()
	local := state.NewLocalPlayer(playerID)
	rt := router.New(logger, room, local, logNotifier{logger})
	conn := transport.NewClient(logger, transport.WithConnectTimeout(cfg.ConnectTimeout))

	var ctrl *session.Controller
	source, err := voice.NewSampleSource()
	if err != nil {
		return fmt.Errorf("creating audio source: %w", err)
	}
	mesh := voice.NewMesh(logger, func(peerID string, sig protocol.Signal) error {
		return ctrl.SendSignal(peerID, sig)
	}, source)

	ctrl = session.New(session.Options{
		Logger:    logger,
		ServerURL: cfg.ServerURL,
		Transport: conn,
		Room:      room,
		Local:     local,
		Router:    rt,
		Mesh:      mesh,
		Tracker:   geo.NewMovementTracker(),
	})

	// Manual retry via the explicit policy; the transport itself never
	// reconnects.
	policy := transport.DefaultReconnectPolicy()
	if err := policy.Run(ctx, ctrl.Connect); err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.ServerURL, err)
	}

	nickname := cfg.Nickname
	if nickname == "" {
		nickname = "Player-" + playerID[:6]
	}
	if err := ctrl.CreateRoom(nickname, &game.Settings{
		MaxPlayers:    8,
		HidingSeconds: 300,
		ChaseSeconds:  600,
		GameMode:      "classic",
	}); err != nil {
		return fmt.Errorf("creating room: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
			snap := room.Snapshot()
			logger.Info("session state",
				"roomId", snap.RoomID,
				"phase", snap.Phase,
				"players", len(snap.Roster),
				"chat", len(snap.ChatLog),
			)
			if radius, ok := ctrl.BattleZoneRadius(time.Now()); ok {
				logger.Info("battle zone", "radius_m", radius)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		leaveCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if room.RoomID() != "" {
			_ = ctrl.LeaveRoom(leaveCtx)
		}
		ctrl.Disconnect()
		return nil
	})

	return g.Wait()
}
