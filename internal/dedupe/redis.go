package dedupe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// Redis-backed dedupe store
// ============================================================================
//
// Each event id maps to one key whose value is the full dedupe entry as JSON.
// Keys carry no expiry: the processing lease is enforced by comparing the
// entry's started_at against the lease inside TryBegin's Lua script, which
// makes the read-evaluate-write atomic against a concurrent TryBegin for the
// same event id.
// ============================================================================

type redisEntry struct {
	State     State  `json:"state"`
	StartedAt int64  `json:"started_at"`
	Succeeded *bool  `json:"succeeded,omitempty"`
	ErrMsg    string `json:"error_message,omitempty"`
	Recorded  *int64 `json:"recorded_at,omitempty"`
}

// RedisStore is C4's Redis-backed implementation.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	lease     time.Duration
	now       func() time.Time
}

// NewRedisStore constructs a RedisStore. A zero lease uses DefaultLease.
func NewRedisStore(client *redis.Client, lease time.Duration) *RedisStore {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &RedisStore{
		client:    client,
		keyPrefix: "dedupe:event:",
		lease:     lease,
		now:       time.Now,
	}
}

func (s *RedisStore) key(eventID string) string {
	return s.keyPrefix + eventID
}

// tryBeginScript performs the test-and-set of spec.md §4.4 atomically:
// KEYS[1] = entry key, ARGV[1] = now (unix seconds), ARGV[2] = lease seconds,
// ARGV[3] = new entry JSON to write on success.
var tryBeginScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
	redis.call("SET", KEYS[1], ARGV[3])
	return 1
end

local entry = cjson.decode(raw)
if entry.state == "SUCCEEDED" then
	return 0
end
if entry.state == "FAILED" then
	redis.call("SET", KEYS[1], ARGV[3])
	return 1
end

-- PROCESSING: only takeable once the lease has expired
local now = tonumber(ARGV[1])
local lease = tonumber(ARGV[2])
if (now - entry.started_at) >= lease then
	redis.call("SET", KEYS[1], ARGV[3])
	return 1
end
return 0
`)

func (s *RedisStore) TryBegin(ctx context.Context, eventID string) (bool, error) {
	now := s.now().Unix()
	fresh := redisEntry{State: StateProcessing, StartedAt: now}
	freshJSON, err := json.Marshal(fresh)
	if err != nil {
		return false, fmt.Errorf("dedupe: marshal entry: %w", err)
	}

	result, err := tryBeginScript.Run(ctx, s.client, []string{s.key(eventID)},
		now, int64(s.lease.Seconds()), string(freshJSON)).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe: try_begin: %w", err)
	}

	acquired, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("dedupe: unexpected try_begin result type %T", result)
	}
	return acquired == 1, nil
}

func (s *RedisStore) RecordOutcome(ctx context.Context, eventID string, outcome Outcome) error {
	startedAt := s.now().Unix()
	if existing, err := s.client.Get(ctx, s.key(eventID)).Result(); err == nil {
		var e redisEntry
		if json.Unmarshal([]byte(existing), &e) == nil {
			startedAt = e.StartedAt
		}
	}

	recorded := s.now().Unix()
	succeeded := outcome.Succeeded
	e := redisEntry{
		StartedAt: startedAt,
		Succeeded: &succeeded,
		ErrMsg:    outcome.ErrorMessage,
		Recorded:  &recorded,
	}
	if outcome.Succeeded {
		e.State = StateSucceeded
	} else {
		e.State = StateFailed
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("dedupe: marshal entry: %w", err)
	}
	if err := s.client.Set(ctx, s.key(eventID), data, 0).Err(); err != nil {
		return fmt.Errorf("dedupe: record_outcome: %w", err)
	}
	return nil
}

func (s *RedisStore) GetOutcome(ctx context.Context, eventID string) (*Outcome, bool, error) {
	raw, err := s.client.Get(ctx, s.key(eventID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("dedupe: get_outcome: %w", err)
	}

	var e redisEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, false, fmt.Errorf("dedupe: decode entry: %w", err)
	}
	if e.Succeeded == nil {
		return nil, false, nil
	}

	outcome := &Outcome{Succeeded: *e.Succeeded, ErrorMessage: e.ErrMsg}
	if e.Recorded != nil {
		outcome.RecordedAt = time.Unix(*e.Recorded, 0)
	}
	return outcome, true, nil
}
