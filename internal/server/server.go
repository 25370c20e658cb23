package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/triviad/internal/api"
	"github.com/victornm/triviad/internal/chat"
	"github.com/victornm/triviad/internal/domain"
	"github.com/victornm/triviad/internal/event"
	"github.com/victornm/triviad/internal/game"
	"github.com/victornm/triviad/internal/leaderboard"
	"github.com/victornm/triviad/internal/ledger"
	"github.com/victornm/triviad/internal/question"
	"github.com/victornm/triviad/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	Question struct {
		BaseURL string
	}

	Game struct {
		RegistrationWindow time.Duration
		AnswerWindow       time.Duration
		RoundBreak         time.Duration
		QuestionCount      int
		TopN               int
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	service struct {
		transport   *chat.Redis
		source      *question.Source
		ledger      *ledger.Service
		leaderboard *leaderboard.Service
		registry    *game.Registry
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s",
		s.c.Postgres.User, s.c.Postgres.Pass, s.c.Postgres.Addr, s.c.Postgres.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() {
	s.service.transport = chat.NewRedis(chat.RedisConfig{
		Client: s.infra.redis,
		Prefix: s.c.Redis.Prefix,
	})

	s.service.source = question.NewSource(question.Config{
		BaseURL: s.c.Question.BaseURL,
	})

	s.service.ledger = ledger.NewService(ledger.Config{
		DB:       s.infra.postgres,
		EventBus: s.eb,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis,
		Prefix:   s.c.Redis.Prefix,
		Ledger:   s.service.ledger,
	})

	s.eb.Subscribe(domain.EventNameSessionEnded, func(ctx context.Context, e event.Event) error {
		ended := e.(domain.EventSessionEnded)
		slog.InfoContext(ctx, "server: session ended",
			"session", ended.SessionID,
			"channel", ended.ChannelID,
			"rounds", ended.Rounds,
			"participants", len(ended.Standings),
		)
		return nil
	})

	s.service.registry = game.NewRegistry(game.Config{
		Transport: s.service.transport,
		Questions: s.service.source,
		Ledger:    s.service.ledger,
		EventBus:  s.eb,

		RegistrationWindow: s.c.Game.RegistrationWindow,
		AnswerWindow:       s.c.Game.AnswerWindow,
		RoundBreak:         s.c.Game.RoundBreak,
		QuestionCount:      s.c.Game.QuestionCount,
		TopN:               s.c.Game.TopN,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Engine:      e,
		Registry:    s.service.registry,
		Leaderboard: s.service.leaderboard,
		Ledger:      s.service.ledger,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.service.registry.Shutdown(ctx)

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()
	s.infra.postgres.Close()

	slog.InfoContext(ctx, "server: shutdown completed")
}
