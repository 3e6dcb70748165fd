package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"IMSync/global"
	"IMSync/logger"
	"IMSync/middleware"
	"IMSync/module/chat/api"
	"IMSync/module/chat/ingest"
	"IMSync/module/chat/presence"
	"IMSync/module/chat/readstate"
	"IMSync/module/chat/store"
	"IMSync/module/chat/typing"
	gateway "IMSync/service/chat"
	"IMSync/service/mgo"
	"IMSync/service/relay"
	"IMSync/service/storage"
	ids "IMSync/tools/ids"
	safe "IMSync/tools/safe"
)

func main() {
	cfg, err := global.Load()
	if err != nil {
		logger.Errorf("[boot] config: %v", err)
		os.Exit(1)
	}
	ids.SetNodeID(cfg.NodeID)

	st := buildStore(cfg)

	rooms := gateway.NewRooms()
	conns := gateway.NewConnManager(gateway.ConnConf{TTL: cfg.PresenceTTL})
	defer conns.Close()
	fan := gateway.NewFanout(cfg.FanoutWorkers, cfg.FanoutQueue)

	rl := buildRelay(cfg)
	var relayPub gateway.Relay
	if rl != nil {
		relayPub = rl
		defer rl.Close()
	}
	bc := gateway.NewLocalBroadcaster(rooms, conns, fan, relayPub)
	if rl != nil {
		if err := rl.Subscribe(bc); err != nil {
			logger.Warnf("[boot] relay subscribe: %v", err)
		}
	}

	// typed-nil trap: the mirror pointer only goes into the interface when it
	// actually exists
	var mirror presence.Mirror
	var lookup api.PresenceLookup
	if pm := buildMirror(cfg); pm != nil {
		mirror = pm
		lookup = pm
	}
	tracker := presence.NewTracker(presence.Conf{
		TTL:       cfg.PresenceTTL,
		GatewayID: cfg.GatewayID,
	}, bc, mirror)
	defer tracker.Close()

	ing := ingest.NewService(st, bc)
	reads := readstate.NewService(st, bc)
	typ := typing.NewBroadcaster(bc)

	verifier := middleware.NewVerifier(cfg.JWTSecret)

	srv := gateway.NewServer(gateway.Conf{
		Store:     st,
		Ingest:    ing,
		Reads:     reads,
		Typing:    typ,
		Presence:  tracker,
		Rooms:     rooms,
		Conns:     conns,
		Auth:      verifier,
		QueueSize: cfg.SendQueueSize,
	})

	rest := api.NewHandlers(st, ing, reads, tracker, lookup)

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", srv.HandleWS)
	rest.Register(r.Group("/api", verifier.Auth()))
	r.GET("/healthz", func(ctx *gin.Context) { ctx.String(http.StatusOK, "ok") })

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	safe.Go(func() {
		logger.Infof("[boot] listening addr=%s gateway=%s", cfg.ListenAddr, cfg.GatewayID)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("[boot] serve: %v", err)
			os.Exit(1)
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("[boot] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warnf("[boot] shutdown: %v", err)
	}
	fan.Close()
}

// buildStore picks mongo when configured, the in-memory store otherwise.
// Persistence failures at boot are fatal; a half-alive engine that cannot
// sequence messages helps nobody.
func buildStore(cfg *global.Config) store.Store {
	if cfg.MongoURI == "" {
		logger.Warn("[boot] no MONGO_URI, using in-memory store (dev only)")
		return store.NewMemStore()
	}
	db, err := mgo.Connect(context.Background(), cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Errorf("[boot] mongo: %v", err)
		os.Exit(1)
	}
	ms := store.NewMongoStore(db)
	if err := ms.EnsureIndexes(context.Background()); err != nil {
		logger.Errorf("[boot] mongo indexes: %v", err)
		os.Exit(1)
	}
	logger.Infof("[boot] mongo connected db=%s", cfg.MongoDB)
	return ms
}

// buildRelay is optional: no NATS url or a failed connect means single-node
// operation, not a dead process.
func buildRelay(cfg *global.Config) *relay.Relay {
	if cfg.NatsURL == "" {
		return nil
	}
	rl, err := relay.Connect(relay.Conf{
		URL:       cfg.NatsURL,
		GatewayID: cfg.GatewayID,
		Name:      "imsync-" + cfg.GatewayID,
	})
	if err != nil {
		logger.Warnf("[boot] relay disabled: %v", err)
		return nil
	}
	logger.Infof("[boot] relay connected url=%s", cfg.NatsURL)
	return rl
}

// buildMirror is optional the same way.
func buildMirror(cfg *global.Config) *storage.PresenceMirror {
	if cfg.RedisAddr == "" {
		return nil
	}
	if err := storage.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
		logger.Warnf("[boot] presence mirror disabled: %v", err)
		return nil
	}
	logger.Infof("[boot] redis connected addr=%s", cfg.RedisAddr)
	return storage.NewPresenceMirror(storage.Redis())
}
