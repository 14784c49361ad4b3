package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/chattersphere/chattersphere/internal/bot"
	"github.com/chattersphere/chattersphere/internal/chat"
	"github.com/chattersphere/chattersphere/internal/config"
	"github.com/chattersphere/chattersphere/internal/database"
	"github.com/chattersphere/chattersphere/internal/logging"
	appmiddleware "github.com/chattersphere/chattersphere/internal/middleware"
	"github.com/chattersphere/chattersphere/internal/module"
	chatmodule "github.com/chattersphere/chattersphere/internal/modules/chat"
	"github.com/chattersphere/chattersphere/internal/presence"
	"github.com/chattersphere/chattersphere/internal/pubsub"
	"github.com/chattersphere/chattersphere/internal/websocket"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E       *echo.Echo
	Cfg     config.Provider
	Conn    database.DBConnection
	Bus     *pubsub.WatermillBridge
	Bridge  *websocket.Bridge
	Tracker *presence.Tracker
	Table   *bot.Table

	modules []module.Module

	runCtx context.Context
	cancel context.CancelFunc
}

// New creates a new Server instance with every dependency wired explicitly.
func New() *Server {
	logging.New()
	cfg := config.New()

	ctx, cancel := context.WithCancel(context.Background())

	conn := database.NewConnection(cfg)
	if err := conn.Connect(ctx); err != nil {
		slog.Error("Failed to connect to database", "error", err)
		cancel()
		os.Exit(1)
	}
	conn.StartMonitoring()

	bus := pubsub.NewWatermillBridge()
	live := database.NewSurrealLiveQueryService(conn)

	store := chat.NewSurrealMessageStore(conn, live)
	marker := chat.NewMarker(store)

	table, err := bot.NewTable(cfg.GetTrainingDataPath())
	if err != nil {
		slog.Error("Failed to load bot training data", "error", err)
		cancel()
		os.Exit(1)
	}
	scripts := bot.NewScriptRunner()

	var generator bot.Generator
	if cfg.GetBotAPIKey() != "" {
		generator = bot.NewHTTPGenerator(cfg.GetBotAPIURL(), cfg.GetBotAPIKey())
	}

	bridge := websocket.NewBridge(bus)
	wsHandler := websocket.NewHandler(bridge, bus)

	tracker, err := presence.NewTracker(ctx, presence.NewSurrealStore(conn), bus, bus)
	if err != nil {
		slog.Error("Failed to start presence tracker", "error", err)
		cancel()
		os.Exit(1)
	}

	// The dispatcher's liveness check closes over the module variable, which
	// is assigned right below; both sides need the other.
	var chatMod *chatmodule.Module
	dispatcher := bot.NewDispatcher(store, table, scripts, generator,
		bot.WithLiveness(func(room string) bool {
			return chatMod == nil || chatMod.RoomAlive(room)
		}))

	chatMod = chatmodule.New(store, marker, dispatcher, tracker, bridge, wsHandler, bus, identityFromSession)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(appmiddleware.RequestLogger)

	cookieStore := sessions.NewCookieStore([]byte(cfg.GetSessionSecret()))
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
	}
	e.Use(session.Middleware(cookieStore))

	e.GET("/health", func(c echo.Context) error {
		if !conn.IsHealthy() {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	registerSessionRoutes(e)

	return &Server{
		E:       e,
		Cfg:     cfg,
		Conn:    conn,
		Bus:     bus,
		Bridge:  bridge,
		Tracker: tracker,
		Table:   table,
		modules: []module.Module{chatMod},
		runCtx:  ctx,
		cancel:  cancel,
	}
}

// Boot starts background processes and registers module routes.
func (s *Server) Boot() error {
	go s.Bridge.Run(s.runCtx)

	go func() {
		if err := s.Table.Watch(s.runCtx); err != nil {
			slog.Error("Training data watcher stopped", "error", err)
		}
	}()

	root := s.E.Group("")
	for _, mod := range s.modules {
		if err := mod.Boot(s.runCtx, root); err != nil {
			return err
		}
		slog.Info("Module booted", "module", mod.Name())
	}
	return nil
}
