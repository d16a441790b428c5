package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/redis/go-redis/v9"
)

// TTL is the lifetime of a mapping. A quote that has not settled within a day
// can no longer be resolved; an in-flight watch keeps its own copy of the
// secrets and is unaffected.
const TTL = 24 * time.Hour

var (
	ErrNotFound = errors.New("mapping not found")
	ErrConflict = errors.New("mapping already exists for this quote or execution hash")
)

// Mapping correlates an external quote/execution identifier with an order.
// Created once after a quote is obtained, never mutated, expired by TTL.
type Mapping struct {
	OrderUID      string    `json:"orderId"`
	QuoteID       string    `json:"quoteId"`
	ExecutionHash string    `json:"executionHash"`
	Secrets       []string  `json:"secrets,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type Store interface {
	// Create persists the mapping under both its quote id and its execution
	// hash. Either key already existing is a conflict and nothing is stored.
	Create(ctx context.Context, mapping Mapping) (Mapping, error)

	ByQuoteID(ctx context.Context, quoteID string) (Mapping, error)

	ByExecutionHash(ctx context.Context, executionHash string) (Mapping, error)
}

type redisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (Store, error) {
	parsedURL, err := url.Parse(redisURL)
	if err != nil {
		return nil, err
	}
	redisPassword, _ := parsedURL.User.Password()
	client := redis.NewClient(&redis.Options{
		Addr:     parsedURL.Host,
		Password: redisPassword,
		DB:       0, // Use default DB.
	})
	return redisStore{client: client}, nil
}

func (rs redisStore) Create(ctx context.Context, mapping Mapping) (Mapping, error) {
	hashBytes, err := hexutil.Decode(mapping.ExecutionHash)
	if err != nil || len(hashBytes) != common.HashLength {
		return Mapping{}, fmt.Errorf("invalid execution hash: %v", mapping.ExecutionHash)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	mapping.CreatedAt = now
	mapping.ExpiresAt = now.Add(TTL)

	data, err := json.Marshal(mapping)
	if err != nil {
		return Mapping{}, err
	}

	ok, err := rs.client.SetNX(ctx, quoteKey(mapping.QuoteID), data, TTL).Result()
	if err != nil {
		return Mapping{}, err
	}
	if !ok {
		return Mapping{}, ErrConflict
	}

	ok, err = rs.client.SetNX(ctx, hashKey(mapping.ExecutionHash), data, TTL).Result()
	if err != nil {
		return Mapping{}, err
	}
	if !ok {
		// Roll back the quote key so a later attempt with the same quote can
		// still succeed.
		rs.client.Del(ctx, quoteKey(mapping.QuoteID))
		return Mapping{}, ErrConflict
	}

	return mapping, nil
}

func (rs redisStore) ByQuoteID(ctx context.Context, quoteID string) (Mapping, error) {
	return rs.get(ctx, quoteKey(quoteID))
}

func (rs redisStore) ByExecutionHash(ctx context.Context, executionHash string) (Mapping, error) {
	return rs.get(ctx, hashKey(executionHash))
}

func (rs redisStore) get(ctx context.Context, key string) (Mapping, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	data, err := rs.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Mapping{}, ErrNotFound
		}
		return Mapping{}, err
	}
	var mapping Mapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return Mapping{}, err
	}
	return mapping, nil
}

func quoteKey(quoteID string) string {
	return fmt.Sprintf("mapping:quote:%v", quoteID)
}

func hashKey(executionHash string) string {
	return fmt.Sprintf("mapping:hash:%v", executionHash)
}
