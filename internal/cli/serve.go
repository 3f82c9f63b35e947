package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tutorgate/internal/api"
	"tutorgate/internal/auth"
	"tutorgate/internal/catalog"
	"tutorgate/internal/config"
	"tutorgate/internal/memory"
	"tutorgate/internal/redis"
	"tutorgate/internal/service/ai"
	"tutorgate/internal/service/store"
	"tutorgate/internal/storage"
	"tutorgate/internal/turn"
	"tutorgate/internal/vector"
	"tutorgate/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE:  runServe,
	}

	RootCmd.AddCommand(cmd)
}

// server owns everything serve opens so it can be closed in reverse order.
type server struct {
	db         *sql.DB
	rdb        *redis.Client
	catalog    *catalog.Cache
	dispatcher *worker.Dispatcher
	handler    *api.Handler
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.BasicConfig.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := buildServer(ctx, cfg, getDBType(), log)
	if err != nil {
		return err
	}
	defer srv.close(log)

	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(log))
	srv.handler.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("server_listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server_shutdown_failed")
	}
	if srv.dispatcher != nil {
		if err := srv.dispatcher.Close(shutdownCtx); err != nil {
			log.WithError(err).WithField("pending", srv.dispatcher.Pending()).Warn("memory_queue_not_drained")
		}
	}
	return nil
}

func buildServer(ctx context.Context, cfg *config.Config, driver string, log logrus.FieldLogger) (*server, error) {
	srv := &server{}
	ok := false
	defer func() {
		if !ok {
			srv.close(log)
		}
	}()

	db, err := storage.Open(driver, cfg)
	if err != nil {
		return nil, err
	}
	srv.db = db
	if err := storage.Migrate(db, driver); err != nil {
		return nil, err
	}
	st := store.NewService(db)

	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		srv.rdb = rdb
	}

	cat, err := catalog.New(st, srv.rdb, log)
	if err != nil {
		return nil, err
	}
	srv.catalog = cat
	if err := cat.Listen(ctx); err != nil {
		return nil, err
	}

	chat, err := ai.NewChatClient(ctx, cfg.Chat.Provider, cfg.ChatProvider())
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	index, err := vector.NewIndex(cfg.Vector)
	if err != nil {
		return nil, err
	}
	embedder := ai.NewEmbedder(cfg.Embedding)
	prefix := cfg.Memory.NamespacePrefix

	extractor := memory.NewExtractor(chat, log, cfg.Memory.Debug)
	writer := memory.NewWriter(extractor, embedder, index, st, prefix, log)
	retriever := memory.NewRetriever(embedder, index, prefix, log)

	var queue turn.JobQueue
	if cfg.BackgroundMemory() {
		srv.dispatcher = worker.NewDispatcher(worker.Options{
			MinWorkers:  cfg.BasicConfig.MinWorkers,
			MaxWorkers:  cfg.BasicConfig.MaxWorkers,
			QueueSize:   cfg.BasicConfig.QueueSize,
			IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
			JobTimeout:  time.Duration(cfg.Memory.WriteTimeoutSec) * time.Second,
		}, log)
		queue = srv.dispatcher
	}

	turns := turn.NewService(st, cat, chat, retriever, writer, queue, turn.Options{
		TopK:       cfg.Memory.RetrieveTopK,
		Background: cfg.BackgroundMemory(),
		Language:   cfg.Chat.ReplyLanguage,
	}, log)

	srv.handler = api.NewHandler(api.Deps{
		Store:       st,
		Catalog:     cat,
		Auth:        auth.NewService(db, st, srv.rdb, time.Duration(cfg.BasicConfig.TokenTTLHours)*time.Hour, log),
		Turns:       turns,
		MemoryAdmin: memory.NewAdmin(st, index, prefix),
		Env:         cfg.BasicConfig.Env,
		AdminToken:  cfg.BasicConfig.AdminToken,
		Log:         log,
	})

	log.WithFields(logrus.Fields{
		"db":         driver,
		"provider":   cfg.Chat.Provider,
		"model":      chat.Model(),
		"redis":      srv.rdb.Enabled(),
		"background": cfg.BackgroundMemory(),
	}).Info("server_ready")
	ok = true
	return srv, nil
}

func (s *server) close(log logrus.FieldLogger) {
	if s.catalog != nil {
		s.catalog.Close()
	}
	if err := s.rdb.Close(); err != nil {
		log.WithError(err).Warn("redis_close_failed")
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.WithError(err).Warn("db_close_failed")
		}
	}
}
