package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/convoflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "convoflow:"

// farFuture scores index entries of sessions that never expire.
const farFuture = 4102444800 // 2100-01-01

// Store implements ports.SessionStore using Redis.
//
// Layout, relative to the prefix:
//
//	session:<id>       JSON document
//	live:<bot>|<addr>  id of the ACTIVE or PAUSED session of the address
//	latest:<bot>|<addr> id of the newest session of the address
//	sessions           ZSET of ids scored by expiry
//	resume             ZSET of pending timers scored by resumeAt or claim lease expiry (unix ms)
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for sessions.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying client so sibling stores can share it.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(id string) string         { return s.prefix + "session:" + id }
func (s *Store) liveKey(slot string) string   { return s.prefix + "live:" + slot }
func (s *Store) latestKey(slot string) string { return s.prefix + "latest:" + slot }
func (s *Store) indexKey() string             { return s.prefix + "sessions" }
func (s *Store) resumeKey() string            { return s.prefix + "resume" }

// KEYS: session, live, latest, index, resume
// ARGV: id, doc, live flag, resume score or "", index score, ttl ms, mode
// mode "create" inserts; mode "save" requires the document to exist.
// Returns 1 on success, 0 when the live slot is held, -1 when missing.
var writeScript = backend.NewScript(`
if ARGV[7] == "save" and redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
local holder = redis.call("GET", KEYS[2])
if ARGV[3] == "1" then
	if holder and holder ~= ARGV[1] then
		return 0
	end
	redis.call("SET", KEYS[2], ARGV[1])
elseif holder == ARGV[1] then
	redis.call("DEL", KEYS[2])
end
local ttl = tonumber(ARGV[6])
if ttl > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
	if ARGV[3] == "1" then
		redis.call("PEXPIRE", KEYS[2], ttl)
	end
else
	redis.call("SET", KEYS[1], ARGV[2])
end
if ARGV[7] == "create" then
	redis.call("SET", KEYS[3], ARGV[1])
	if ttl > 0 then
		redis.call("PEXPIRE", KEYS[3], ttl)
	end
end
redis.call("ZADD", KEYS[4], ARGV[5], ARGV[1])
if ARGV[4] ~= "" then
	redis.call("ZADD", KEYS[5], ARGV[4], ARGV[1])
else
	redis.call("ZREM", KEYS[5], ARGV[1])
end
return 1
`)

// KEYS: session, live, latest, index, resume
// ARGV: id
var deleteScript = backend.NewScript(`
redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[4], ARGV[1])
redis.call("ZREM", KEYS[5], ARGV[1])
if redis.call("GET", KEYS[2]) == ARGV[1] then
	redis.call("DEL", KEYS[2])
end
if redis.call("GET", KEYS[3]) == ARGV[1] then
	redis.call("DEL", KEYS[3])
end
return 1
`)

func (s *Store) write(ctx context.Context, sess *domain.Session, mode string) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	slot := domain.LiveKey(sess.BotID, sess.Address)

	live := "0"
	if sess.Status.Live() {
		live = "1"
	}
	resume := ""
	if sess.Status == domain.StatusPaused && sess.ResumeAt != nil {
		resume = strconv.FormatInt(sess.ResumeAt.UnixMilli(), 10)
	}
	score := int64(farFuture)
	if s.ttl > 0 {
		score = time.Now().Add(s.ttl).Unix()
	}

	keys := []string{s.key(sess.ID), s.liveKey(slot), s.latestKey(slot), s.indexKey(), s.resumeKey()}
	res, err := writeScript.Run(ctx, s.client, keys,
		sess.ID, data, live, resume, score, s.ttl.Milliseconds(), mode).Int()
	if err != nil {
		return fmt.Errorf("failed to write session to redis: %w", err)
	}
	switch res {
	case 0:
		return domain.ErrLiveSessionExists
	case -1:
		return domain.ErrSessionNotFound
	}
	return nil
}

// Create inserts a new session, claiming its live slot.
func (s *Store) Create(ctx context.Context, sess *domain.Session) error {
	return s.write(ctx, sess, "create")
}

// Save overwrites an existing session and keeps the live slot in sync.
func (s *Store) Save(ctx context.Context, sess *domain.Session) error {
	return s.write(ctx, sess, "save")
}

// Get retrieves a session by id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *Store) lookup(ctx context.Context, key string) (*domain.Session, error) {
	id, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return s.Get(ctx, id)
}

// FindLive returns the live session of an address.
func (s *Store) FindLive(ctx context.Context, botID, address string) (*domain.Session, error) {
	return s.lookup(ctx, s.liveKey(domain.LiveKey(botID, address)))
}

// FindLatest returns the newest session of an address.
func (s *Store) FindLatest(ctx context.Context, botID, address string) (*domain.Session, error) {
	return s.lookup(ctx, s.latestKey(domain.LiveKey(botID, address)))
}

// ClaimResume moves a due PAUSED session to ACTIVE inside an optimistic
// transaction. A caller that loses the race sees a redis.TxFailedErr and
// reports false.
//
// The resume entry is re-scored to now plus domain.ClaimLease rather than
// removed, so a claim whose resume never saves becomes due again. Entries
// whose document expired or no longer owes a timer are dropped.
func (s *Store) ClaimResume(ctx context.Context, id string, now time.Time) (bool, error) {
	claimed := false
	key := s.key(id)

	err := s.client.Watch(ctx, func(tx *backend.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, backend.Nil) {
				if err := tx.ZRem(ctx, s.resumeKey(), id).Err(); err != nil {
					return err
				}
				return domain.ErrSessionNotFound
			}
			return err
		}
		var sess domain.Session
		if err := json.Unmarshal(val, &sess); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		if !sess.Claimable(now) {
			if sess.TimerPending() {
				return nil
			}
			_, err := tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
				pipe.ZRem(ctx, s.resumeKey(), id)
				return nil
			})
			return err
		}
		sess.Status = domain.StatusActive
		sess.ResumeAt = nil
		sess.UpdatedAt = now
		data, err := json.Marshal(&sess)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		retry := backend.Z{Score: float64(now.Add(domain.ClaimLease).UnixMilli()), Member: id}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, backend.KeepTTL)
			pipe.ZAdd(ctx, s.resumeKey(), retry)
			return nil
		})
		if err == nil {
			claimed = true
		}
		return err
	}, key)

	switch {
	case errors.Is(err, backend.TxFailedErr):
		return false, nil
	case errors.Is(err, domain.ErrSessionNotFound):
		return false, err
	case err != nil:
		return false, fmt.Errorf("failed to claim session: %w", err)
	}
	return claimed, nil
}

// ListDue returns the due paused sessions and stalled claims, earliest first.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	opt := &backend.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	ids, err := s.client.ZRangeByScore(ctx, s.resumeKey(), opt).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list due sessions: %w", err)
	}
	return ids, nil
}

// List returns stored sessions, pruning index entries whose TTL has passed.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	sessions, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes the session and releases its slots.
func (s *Store) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	slot := domain.LiveKey(sess.BotID, sess.Address)
	keys := []string{s.key(id), s.liveKey(slot), s.latestKey(slot), s.indexKey(), s.resumeKey()}
	if err := deleteScript.Run(ctx, s.client, keys, id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
