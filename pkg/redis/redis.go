package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("key not found")

const (
	generationKeyPrefix = "clip:generation:"
	clipResultKeyPrefix = "clip:result:"
)

type IRedis interface {
	// NextGeneration bumps and returns the clip generation for a patient.
	NextGeneration(ctx context.Context, patientID string) (int64, error)
	SetClipResult(ctx context.Context, clipID string, payload []byte, expiration time.Duration) error
	GetClipResult(ctx context.Context, clipID string) ([]byte, error)
	DeleteClipResult(ctx context.Context, clipID string) error
	Ping(ctx context.Context) error
}

type redisClient struct {
	client *redis.Client
}

func New() IRedis {
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	redisAddr := os.Getenv("REDIS_ADDRESS")
	redisPassword := os.Getenv("REDIS_PASSWORD")

	logrus.Info(fmt.Sprintf("Connecting to Redis at %s...", redisAddr))

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logrus.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		logrus.Info("Successfully connected to Redis")
	}

	return &redisClient{client: client}
}

// NewWithClient wraps an existing client, used by tests against miniredis.
func NewWithClient(client *redis.Client) IRedis {
	return &redisClient{client: client}
}

func (r *redisClient) NextGeneration(ctx context.Context, patientID string) (int64, error) {
	gen, err := r.client.Incr(ctx, generationKeyPrefix+patientID).Result()
	if err != nil {
		logrus.Error(fmt.Sprintf("Error bumping clip generation for patient %s: %v", patientID, err))
		return 0, err
	}
	logrus.Debug(fmt.Sprintf("Patient %s is now at clip generation %d", patientID, gen))
	return gen, nil
}

func (r *redisClient) SetClipResult(ctx context.Context, clipID string, payload []byte, expiration time.Duration) error {
	logrus.Debug(fmt.Sprintf("Caching result for clip %s with expiration %v", clipID, expiration))
	if err := r.client.Set(ctx, clipResultKeyPrefix+clipID, payload, expiration).Err(); err != nil {
		logrus.Error(fmt.Sprintf("Error caching result for clip %s: %v", clipID, err))
		return err
	}
	return nil
}

func (r *redisClient) GetClipResult(ctx context.Context, clipID string) ([]byte, error) {
	val, err := r.client.Get(ctx, clipResultKeyPrefix+clipID).Bytes()
	if errors.Is(err, redis.Nil) {
		logrus.Debug(fmt.Sprintf("No cached result for clip %s", clipID))
		return nil, ErrNotFound
	} else if err != nil {
		logrus.Error(fmt.Sprintf("Error reading result for clip %s: %v", clipID, err))
		return nil, err
	}
	return val, nil
}

func (r *redisClient) DeleteClipResult(ctx context.Context, clipID string) error {
	result, err := r.client.Del(ctx, clipResultKeyPrefix+clipID).Result()
	if err != nil {
		logrus.Error(fmt.Sprintf("Error deleting result for clip %s: %v", clipID, err))
		return err
	}

	if result == 0 {
		logrus.Debug(fmt.Sprintf("Clip result %s not found for deletion", clipID))
	}
	return nil
}

func (r *redisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
