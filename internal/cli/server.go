package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classpulse/internal/app"
	"classpulse/internal/config"
	"classpulse/internal/domain"
	"classpulse/internal/infra/memory"
	pgstore "classpulse/internal/infra/postgres"
	rediscache "classpulse/internal/infra/redis"
	transport "classpulse/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the classroom engagement server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var store app.Store
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = pgstore.NewStore(pool)
	} else {
		memStore := memory.NewStore()
		seedDemoData(ctx, memStore)
		store = memStore
	}

	if err := seedAdmins(ctx, store, cfg.Admins); err != nil {
		return err
	}

	cacheTTL := config.TTLDuration(cfg.Poll.CacheTTL, 30*time.Second)
	var pollSource app.PollSource
	var invalidator app.PollCacheInvalidator
	if redisClient != nil {
		cache := rediscache.NewPollCache(redisClient, store, cacheTTL)
		pollSource, invalidator = cache, cache
	} else {
		cache := memory.NewPollCache(store, cacheTTL)
		pollSource, invalidator = cache, cache
	}

	statsService := app.NewStatsService(store, store, store)
	answerService := app.NewAnswerService(store, store, pollSource, store, store)
	adminService := app.NewAdminService(store, store, store).WithPollCache(invalidator)
	wsHandler := transport.NewWSHandler(answerService, statsService, adminService)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting classpulse on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedAdmins makes sure every configured admin chat ID has an account.
func seedAdmins(ctx context.Context, store app.Store, chatIDs []int64) error {
	for _, chatID := range chatIDs {
		if _, err := store.UserByChatID(ctx, chatID); err == nil {
			continue
		}
		_, err := store.CreateUser(ctx, domain.User{
			ChatID:         chatID,
			FullName:       "Admin",
			AttentionScore: app.MaxAttentionScore,
			Role:           domain.RoleAdmin,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// seedDemoData fills the in-memory store so the service is usable without
// Postgres: one teacher, one group, two students and an open poll.
func seedDemoData(ctx context.Context, store *memory.Store) {
	teacher, err := store.CreateUser(ctx, domain.User{
		ChatID:         1,
		FullName:       "Demo Teacher",
		AttentionScore: app.MaxAttentionScore,
		Role:           domain.RoleAdmin,
	})
	if err != nil {
		log.Printf("seed teacher: %v", err)
		return
	}
	group, err := store.CreateGroup(ctx, domain.Group{Name: "43-IS", TeacherID: teacher.ID})
	if err != nil {
		log.Printf("seed group: %v", err)
		return
	}
	for i, name := range []string{"Alice Demo", "Bob Demo"} {
		if _, err := store.CreateUser(ctx, domain.User{
			ChatID:         int64(100 + i),
			FullName:       name,
			AttentionScore: app.MaxAttentionScore,
			GroupID:        &group.ID,
			Role:           domain.RoleUser,
		}); err != nil {
			log.Printf("seed student: %v", err)
		}
	}
	_, err = store.CreatePoll(ctx, domain.Poll{
		Question:  "What is 2 + 2?",
		GroupID:   group.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		IsActive:  true,
	}, []domain.Option{
		{Value: "3"},
		{Value: "4", IsAnswerKey: true},
		{Value: "5"},
	})
	if err != nil {
		log.Printf("seed poll: %v", err)
	}
}
