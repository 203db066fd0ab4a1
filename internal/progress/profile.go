package progress

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultProfileKey is the Redis hash holding the profile.
const DefaultProfileKey = "study:profile"

// Profile is the learner's running XP total and daily streak.
type Profile struct {
	TotalXP int64  `json:"totalXP"`
	Streak  int    `json:"currentStreak"`
	LastDay string `json:"lastStudyDay,omitempty"` // YYYY-MM-DD, local time
}

// ProfileStore loads and saves the single profile.
type ProfileStore interface {
	Load(ctx context.Context) (Profile, error)
	Save(ctx context.Context, p Profile) error
}

// MemoryProfileStore keeps the profile in process memory.
type MemoryProfileStore struct {
	mu sync.RWMutex
	p  Profile
}

// NewMemoryProfileStore creates a zero profile.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{}
}

func (s *MemoryProfileStore) Load(_ context.Context) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p, nil
}

func (s *MemoryProfileStore) Save(_ context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = p
	return nil
}

// RedisProfileStore keeps the profile in a Redis hash so it survives
// restarts and is shared between processes.
type RedisProfileStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisProfileStore creates a store under key, or DefaultProfileKey.
func NewRedisProfileStore(client redis.Cmdable, key string) *RedisProfileStore {
	if key == "" {
		key = DefaultProfileKey
	}
	return &RedisProfileStore{client: client, key: key}
}

func (s *RedisProfileStore) Load(ctx context.Context) (Profile, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return Profile{}, fmt.Errorf("loading profile: %w", err)
	}

	var p Profile
	if v, ok := fields["total_xp"]; ok {
		if p.TotalXP, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Profile{}, fmt.Errorf("parsing total_xp %q: %w", v, err)
		}
	}
	if v, ok := fields["streak"]; ok {
		if p.Streak, err = strconv.Atoi(v); err != nil {
			return Profile{}, fmt.Errorf("parsing streak %q: %w", v, err)
		}
	}
	p.LastDay = fields["last_day"]
	return p, nil
}

func (s *RedisProfileStore) Save(ctx context.Context, p Profile) error {
	err := s.client.HSet(ctx, s.key,
		"total_xp", p.TotalXP,
		"streak", p.Streak,
		"last_day", p.LastDay,
	).Err()
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}
