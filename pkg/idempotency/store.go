package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// InFlight marks a claimed key whose final response is not recorded yet.
const InFlight = "__in_flight__"

// Store remembers request keys so a retried submission does not create a
// second order. First writer wins via SetNX; the recorded value (the order
// id) is returned to replays.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(buyerID int64, requestKey string) string {
	return fmt.Sprintf("idem:submit:%d:%s", buyerID, requestKey)
}

// Claim reserves key for this request. When the key was already claimed it
// returns the previously stored value and claimed=false.
func (s *Store) Claim(ctx context.Context, key, value string) (claimed bool, existing string, err error) {
	ok, err := s.rdb.SetNX(ctx, key, value, s.ttl).Result()
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, "", nil
	}
	existing, err = s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		// Claimed key expired between SetNX and Get; treat as fresh.
		return true, "", nil
	}
	return false, existing, err
}

// Record overwrites the stored value for key, used once the real order id is
// known after a successful submit.
func (s *Store) Record(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, key, value, s.ttl).Err()
}

// Release frees a claimed key whose request did not produce a recordable
// outcome. The claim must not outlive the failed attempt, otherwise the
// client's retries would be rejected until the TTL expires.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
