package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/playbridge/server/internal/controller"
	sessionRedis "github.com/playbridge/server/internal/repository/session/redis"
	"github.com/playbridge/server/internal/service/session"
	"github.com/playbridge/server/pkg/ctxlogger"
	"github.com/playbridge/server/pkg/oembed"
	"github.com/playbridge/server/pkg/redisclient"
)

type AppConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`

	DefaultVolume     float64 `json:"default_volume"`
	DefaultMuted      bool    `json:"default_muted"`
	VolumeAPIReliable bool    `json:"volume_api_reliable"`
	YouTubeNoCookie   bool    `json:"youtube_nocookie"`
	BunnyHosts        string  `json:"bunny_hosts"`

	LoaderTimeoutSec int     `json:"loader_timeout_sec"`
	ResumeThreshold  float64 `json:"resume_threshold"`

	RedisPort     int    `json:"redis_port"`
	RedisHost     string `json:"redis_host"`
	RedisPassword string `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.DefaultVolume < 0 || cfg.DefaultVolume > 1 {
		return fmt.Errorf("default volume must be between 0 and 1")
	}
	if cfg.LoaderTimeoutSec < 1 {
		return fmt.Errorf("loader timeout must be greater than 0")
	}
	if cfg.ResumeThreshold < 0 {
		return fmt.Errorf("resume threshold must not be negative")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(&h)

	rc, err := redisclient.NewRedisClient(&redisclient.Config{
		Port:     cfg.RedisPort,
		Host:     cfg.RedisHost,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	snapshotRepo := sessionRedis.NewRepo(rc, 24*14*time.Hour)
	oembedClient := oembed.NewClient(10 * time.Second)
	sessionService := session.NewService(snapshotRepo, oembedClient, &session.Config{
		DefaultVolume:     cfg.DefaultVolume,
		DefaultMuted:      cfg.DefaultMuted,
		VolumeAPIReliable: cfg.VolumeAPIReliable,
		YouTubeNoCookie:   cfg.YouTubeNoCookie,
		BunnyHosts:        splitHosts(cfg.BunnyHosts),
		LoaderTimeout:     time.Duration(cfg.LoaderTimeoutSec) * time.Second,
		ResumeThreshold:   cfg.ResumeThreshold,
	}, logger)
	controller := controller.NewController(sessionService, logger)
	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: controller.Mux()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	slog.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}

func splitHosts(hosts string) []string {
	if hosts == "" {
		return nil
	}

	split := strings.Split(hosts, ",")
	for i := range split {
		split[i] = strings.TrimSpace(split[i])
	}
	return split
}
