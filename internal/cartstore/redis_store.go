package cartstore

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"fondapos/backend/internal/cart"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string, password string, db int) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStore{client: client}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Load(ctx context.Context, operator string) (*cart.Cart, bool, error) {
	val, err := s.client.Get(ctx, key(operator)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	c, err := decodeCart([]byte(val))
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (s *RedisStore) Save(ctx context.Context, operator string, c *cart.Cart, ttl time.Duration) error {
	payload, err := encodeCart(c)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key(operator), payload, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, operator string) error {
	return s.client.Del(ctx, key(operator)).Err()
}

func key(operator string) string {
	return "cart:" + operator
}

func encodeCart(c *cart.Cart) ([]byte, error) {
	return json.Marshal(c)
}

func decodeCart(payload []byte) (*cart.Cart, error) {
	var c cart.Cart
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, err
	}
	c.SetNotifier(cart.NopNotifier{})
	return &c, nil
}
