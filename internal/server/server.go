package server

import (
	"backend-revly/internal/auth"
	"backend-revly/internal/config"
	"backend-revly/internal/db"
	"backend-revly/internal/recovery"
	"backend-revly/internal/stream"
	"backend-revly/internal/tracking"
	"backend-revly/internal/trip"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Trips    *trip.Service
	Tracking *tracking.Registry
}

// NewServer wires the API. db, redisClient and events may be nil: trips
// are then not stored, recovery state stays in memory and no trip events
// are published.
func NewServer(cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client, events *amqp.Channel) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     pool,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	var querier db.Querier
	if pool != nil {
		querier = pool
	}
	var publisher trip.EventPublisher
	if events != nil {
		publisher = trip.NewAMQPPublisher(events, cfg.AMQPExchange)
	}
	s.Trips = trip.NewService(querier, publisher)

	var store recovery.Store = recovery.NewMemoryStore()
	if redisClient != nil {
		store = recovery.NewRedisStore(redisClient, cfg.RecoveryTTL)
	}
	deps := tracking.Deps{Store: store, Publisher: s.Stream}
	if querier != nil {
		deps.Sink = s.Trips
	}
	s.Tracking = tracking.NewRegistry(tracking.OptionsFromConfig(cfg.Tracking), deps)

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	trip.RegisterRoutes(s.App.Group("/trips"), s.Trips, jwtMiddleware)
	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracking, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, jwtMiddleware)
}

// Close stops every tracking manager and the stream relay.
func (s *Server) Close() {
	s.Tracking.Close()
	s.Stream.Close()
}
