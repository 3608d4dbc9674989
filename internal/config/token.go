package config

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	apperrors "upstox-options/internal/errors"
)

// TokenSource resolves the Upstox access token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a token read from config or the environment.
type StaticToken string

// Token returns the token, or ErrNotAuthenticated when it is empty.
func (s StaticToken) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", apperrors.ErrNotAuthenticated
	}
	return string(s), nil
}

// RedisToken reads the token from a Redis key written by the login flow.
type RedisToken struct {
	client *redis.Client
	key    string
}

// NewRedisToken parses url and returns a Redis-backed token source.
func NewRedisToken(url, key string) (*RedisToken, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if key == "" {
		key = DefaultTokenKey
	}
	return &RedisToken{
		client: redis.NewClient(opt),
		key:    key,
	}, nil
}

// Token fetches the current token from Redis.
func (r *RedisToken) Token(ctx context.Context) (string, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return "", apperrors.Wrapf(apperrors.ErrNotAuthenticated, "redis key %q not set", r.key)
	}
	if err != nil {
		return "", fmt.Errorf("%w: reading token from redis: %v", apperrors.ErrConnectionFailed, err)
	}
	if val == "" {
		return "", apperrors.ErrNotAuthenticated
	}
	return val, nil
}

// Close releases the Redis connection pool.
func (r *RedisToken) Close() error {
	return r.client.Close()
}

// NewTokenSource picks the token source for the given credentials.
// An explicit access token wins over Redis.
func NewTokenSource(creds UpstoxCredentials) (TokenSource, error) {
	if creds.AccessToken != "" || creds.RedisURL == "" {
		return StaticToken(creds.AccessToken), nil
	}
	return NewRedisToken(creds.RedisURL, creds.TokenKey)
}
