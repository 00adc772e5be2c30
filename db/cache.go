package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/yashasviy/bank-ledger-api/models"
)

// CacheKeyPrefix namespaces cached account records in Redis.
const CacheKeyPrefix = "account:"

// CachedStore is a read-through, write-through Redis cache in front of another store.
// Cache failures are logged and fall back to the underlying store.
type CachedStore struct {
	next   AccountStore
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ AccountStore = (*CachedStore)(nil)

// NewCachedStore caches next in Redis for ttl. A nil logger discards output.
func NewCachedStore(next AccountStore, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

// FindByLastName serves from Redis when it can and fills the cache on a miss.
func (s *CachedStore) FindByLastName(ctx context.Context, lastName string) (*models.Account, error) {
	data, err := s.rdb.Get(ctx, CacheKeyPrefix+lastName).Bytes()
	if err == nil {
		var account models.Account
		if err := json.Unmarshal(data, &account); err == nil {
			return &account, nil
		}
		s.logger.Warn("discarding unreadable cached account", zap.String("lastName", lastName))
	} else if err != redis.Nil {
		s.logger.Warn("account cache read failed", zap.String("lastName", lastName), zap.Error(err))
	}

	account, err := s.next.FindByLastName(ctx, lastName)
	if err != nil {
		return nil, err
	}
	s.put(ctx, account)
	return account, nil
}

// Save writes through to next and then refreshes the cache entry.
func (s *CachedStore) Save(ctx context.Context, account *models.Account) (*models.Account, error) {
	saved, err := s.next.Save(ctx, account)
	if err != nil {
		// The write may or may not have landed; drop the entry rather than serve a guess.
		if delErr := s.rdb.Del(ctx, CacheKeyPrefix+account.LastName).Err(); delErr != nil {
			s.logger.Warn("account cache invalidation failed", zap.String("lastName", account.LastName), zap.Error(delErr))
		}
		return nil, err
	}
	s.put(ctx, saved)
	return saved, nil
}

func (s *CachedStore) put(ctx context.Context, account *models.Account) {
	data, err := json.Marshal(account)
	if err != nil {
		s.logger.Warn("account cache marshal failed", zap.String("lastName", account.LastName), zap.Error(err))
		return
	}
	if err := s.rdb.Set(ctx, CacheKeyPrefix+account.LastName, data, s.ttl).Err(); err != nil {
		s.logger.Warn("account cache write failed", zap.String("lastName", account.LastName), zap.Error(err))
	}
}
