package config

import (
	"HealthVision/database/postgres"
	fallHandler "HealthVision/internal/api/fall_detection/handler"
	fallRepository "HealthVision/internal/api/fall_detection/repository"
	fallService "HealthVision/internal/api/fall_detection/service"
	"HealthVision/internal/middleware"
	"HealthVision/internal/pipeline"
	"HealthVision/pkg/inference"
	"HealthVision/pkg/onnx"
	"HealthVision/pkg/redis"
	"HealthVision/pkg/s3"
	"HealthVision/pkg/utils"
	"context"
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"os"
	"time"
)

type ServerOption func(*Server) error

type Server struct {
	engine      *fiber.App
	db          *sqlx.DB
	log         *logrus.Logger
	middleware  middleware.Middleware
	validator   *validator.Validate
	utils       utils.IUtils
	handlers    []handler
	redisServer redis.IRedis
	s3Client    s3.ItfS3
	pipeline    *pipeline.Engine
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.pipeline == nil {
		return nil, fmt.Errorf("inference pipeline is required")
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithDatabase() ServerOption {
	return func(s *Server) error {
		db, err := postgres.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database: %v", err)
			}
			return fmt.Errorf("failed to create database connection: %w", err)
		}
		s.db = db
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log, middleware.RateLimitConfigFromEnv(), s.utils)
		return nil
	}
}

// WithS3Client connects clip storage. Without AWS_BUCKET_NAME the server runs
// without stored clips and fall snapshots.
func WithS3Client() ServerOption {
	return func(s *Server) error {
		if os.Getenv("AWS_BUCKET_NAME") == "" {
			if s.log != nil {
				s.log.Warn("AWS_BUCKET_NAME not set, clip storage disabled")
			}
			return nil
		}

		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

// WithPipeline builds the inference engine from the environment. The remote
// client and the local pose model are each optional; with neither, frames
// fall through to the heuristic strategy.
func WithPipeline(cfg pipeline.Config) ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before pipeline")
		}

		opts := []pipeline.EngineOption{
			pipeline.WithLogger(s.log.WithField("component", "pipeline")),
		}

		if cfg.Remote.URL != "" {
			remote := inference.New(inference.Config{
				URL:     cfg.Remote.URL,
				Timeout: cfg.Remote.Timeout,
			}, s.log)
			opts = append(opts, pipeline.WithRemote(remote))
			s.log.WithField("url", cfg.Remote.URL).Info("Remote inference enabled")
		}

		factory, err := onnx.NewFactory(cfg.Local, cfg.Clip.InputSize)
		switch {
		case err == nil:
			opts = append(opts, pipeline.WithModelFactory(factory))
			s.log.WithField("model", cfg.Local.ModelPath).Info("Local pose model enabled")
		case errors.Is(err, onnx.ErrDisabled):
			s.log.Warn("POSE_MODEL_PATH not set, local pose model disabled")
		default:
			s.log.Errorf("Failed to load local pose model: %v", err)
		}

		s.pipeline = pipeline.NewEngine(cfg, opts...)
		return nil
	}
}

func (s *Server) RegisterHandler() {
	// Fall Detection
	fallRepo := fallRepository.New(s.db, s.log)
	fallServices := fallService.NewFallDetectionService(s.log, fallRepo, s.pipeline, s.redisServer, s.s3Client, s.utils)
	fallHandlers := fallHandler.New(s.log, s.validator, s.middleware, fallServices, s.utils)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, fallHandlers)
}

func (s *Server) Run() error {
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())
	router := s.engine.Group("/api/v1")

	for _, h := range s.handlers {
		h.Start(router)
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "3000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

func (s *Server) Shutdown(timeout time.Duration) error {
	err := s.engine.ShutdownWithTimeout(timeout)
	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message": "Server is Healthy!",
		})
	})

	s.engine.Get("/healthz", func(ctx *fiber.Ctx) error {
		c, cancel := context.WithTimeout(ctx.UserContext(), 2*time.Second)
		defer cancel()

		checks := fiber.Map{}
		status := fiber.StatusOK

		if s.db != nil {
			if err := s.db.PingContext(c); err != nil {
				checks["postgres"] = err.Error()
				status = fiber.StatusServiceUnavailable
			} else {
				checks["postgres"] = "ok"
			}
		}

		if s.redisServer != nil {
			if err := s.redisServer.Ping(c); err != nil {
				checks["redis"] = err.Error()
				status = fiber.StatusServiceUnavailable
			} else {
				checks["redis"] = "ok"
			}
		}

		return ctx.Status(status).JSON(checks)
	})
}
