// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/queueup-gg/queueup/internal/auth"
	"github.com/queueup-gg/queueup/internal/cache"
	"github.com/queueup-gg/queueup/internal/config"
	"github.com/queueup-gg/queueup/internal/database"
	"github.com/queueup-gg/queueup/internal/handlers"
	"github.com/queueup-gg/queueup/internal/lobby"
	"github.com/queueup-gg/queueup/internal/middleware"
	"github.com/queueup-gg/queueup/internal/provision"
)

func main() {
	cfg := config.Load()
	if cfg.AuthPrivateKeyFile != "" && cfg.AuthPublicKeyFile != "" {
		if err := auth.InitFromPath(cfg.AuthPrivateKeyFile, cfg.AuthPublicKeyFile); err != nil {
			log.Fatalf("failed to load auth keys: %v", err)
		}
	} else {
		auth.Init()
	}

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	ctx := context.Background()

	pool, err := database.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	rdb, err := cache.Connect(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	hub := handlers.NewLobbyHub(logger)

	svc := lobby.NewService(
		lobby.NewStore(),
		lobby.Options{
			Window: lobby.WindowConfig{
				BaseRange:         cfg.Matchmaking.BaseRange,
				RangeStep:         cfg.Matchmaking.RangeStep,
				ExpandInterval:    cfg.Matchmaking.ExpandInterval,
				MaxSteps:          cfg.Matchmaking.MaxSteps,
				LastSeatGrace:     cfg.Matchmaking.LastSeatGrace,
				AbsoluteMinRating: cfg.Matchmaking.AbsoluteMinRating,
				MinGames:          cfg.Matchmaking.MinGames,
				Granularity:       cfg.Matchmaking.Granularity,
				PercentileCut:     cfg.Matchmaking.PercentileCut,
				SpreadDivisor:     cfg.Matchmaking.SpreadDivisor,
			},
			AutojoinOriginChannel: cfg.Matchmaking.AutojoinOriginChannel,
			InactivityTimeout:     cfg.Matchmaking.InactivityTimeout,
			SweepInterval:         cfg.Matchmaking.SweepInterval,
		},
		database.NewLadder(pool),
		provision.NewClient(cfg.ProvisionerURL, logger),
		hub,
		database.NewLobbyStore(pool),
		cache.NewPublisher(rdb, cfg.EventQueueName),
		logger,
	)

	srv := handlers.NewServer(svc, hub, cfg.AdminKeyHash, logger)

	go svc.ExpireLoop(ctx)

	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(logger)

	// session endpoint
	mux.Handle("/session/create", logged(handlers.CreateSessionHandler(srv)))

	// lobby endpoints
	mux.Handle("/lobby/create", logged(handlers.CreateLobbyHandler(srv)))
	mux.Handle("/lobby/join", logged(handlers.JoinLobbyHandler(srv)))
	mux.Handle("/lobby/leave", logged(handlers.LeaveLobbyHandler(srv)))
	mux.Handle("/lobby/autojoin", logged(handlers.AutojoinHandler(srv)))
	mux.Handle("/lobby/open-last-seat", logged(handlers.OpenLastSeatHandler(srv)))
	mux.Handle("/lobby/list", logged(handlers.ListLobbiesHandler(srv)))

	// lobby status stream
	mux.Handle("/lobby/ws", logged(handlers.LobbyWSHandler(srv)))

	// admin endpoints
	mux.Handle("/admin/lobby/remove", logged(handlers.AdminRemoveLobbyHandler(srv)))

	logger.Infof("Running on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
