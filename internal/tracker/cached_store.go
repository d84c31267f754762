package tracker

import (
	"context"
	"time"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

const megabyte = 1024 * 1024

var _ Store = (*CachedStore)(nil)

// CachedStore keeps usernames of looked up users in a freecache.Cache.
// Users never change, so cached entries can't go stale.
type CachedStore struct {
	Store
	cache      *freecache.Cache
	ttlSeconds int
}

// NewCachedStore wraps store with a user cache of cacheSizeMB megabytes.
// A zero ttl keeps entries until they are evicted.
func NewCachedStore(store Store, cacheSizeMB int, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store:      store,
		cache:      freecache.NewCache(cacheSizeMB * megabyte),
		ttlSeconds: int(ttl.Seconds()),
	}
}

func (s *CachedStore) CreateUser(ctx context.Context, username string) (*User, error) {
	user, err := s.Store.CreateUser(ctx, username)
	if err != nil {
		return nil, err
	}
	s.set(user)
	return user, nil
}

func (s *CachedStore) FindUser(ctx context.Context, id string) (*User, error) {
	if username, err := s.cache.Get(userCacheKey(id)); err == nil {
		return &User{ID: id, Username: string(username)}, nil
	}

	user, err := s.Store.FindUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.set(user)
	return user, nil
}

func (s *CachedStore) set(user *User) {
	if err := s.cache.Set(userCacheKey(user.ID), []byte(user.Username), s.ttlSeconds); err != nil {
		log.Warnf("cache user [%s]: %s", user.ID, err)
	}
}

func (s *CachedStore) CacheStats() (hits, misses int64) {
	return s.cache.HitCount(), s.cache.MissCount()
}

func userCacheKey(id string) []byte {
	return []byte("user:" + id)
}
