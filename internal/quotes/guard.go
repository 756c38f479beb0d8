package quotes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// ErrStaleSequence is returned by Next when the requested sequence is not
// newer than the last one issued for the key.
var ErrStaleSequence = errors.New("quote sequence is stale")

// Guard orders quote requests per shopper so only the newest result applies.
type Guard interface {
	// Next issues a sequence for key. requested == 0 asks for current+1;
	// otherwise requested must be greater than the current sequence.
	Next(ctx context.Context, key string, requested uint64) (uint64, error)
	// IsLatest reports whether seq is still the newest sequence for key.
	IsLatest(ctx context.Context, key string, seq uint64) (bool, error)
}

type MemoryGuard struct {
	mu   sync.Mutex
	seqs map[string]uint64
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{seqs: map[string]uint64{}}
}

func (g *MemoryGuard) Next(_ context.Context, key string, requested uint64) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cur := g.seqs[key]
	if requested == 0 {
		requested = cur + 1
	} else if requested <= cur {
		return 0, ErrStaleSequence
	}
	g.seqs[key] = requested
	return requested, nil
}

func (g *MemoryGuard) IsLatest(_ context.Context, key string, seq uint64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seqs[key] <= seq, nil
}

// nextSeqScript returns the issued sequence, or -1 when ARGV[1] is stale.
const nextSeqScript = `
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local req = tonumber(ARGV[1])
if req == 0 then
  req = cur + 1
elseif req <= cur then
  return -1
end
redis.call('SET', KEYS[1], req, 'PX', ARGV[2])
return req
`

type sequenceStore interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)
	Get(ctx context.Context, key string) (string, error)
	QuoteSeqKey(owner string) string
}

// RedisGuard shares sequences across API replicas.
type RedisGuard struct {
	client sequenceStore
	ttl    time.Duration
}

func NewRedisGuard(client sequenceStore, ttl time.Duration) (*RedisGuard, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisGuard{client: client, ttl: ttl}, nil
}

func (g *RedisGuard) Next(ctx context.Context, key string, requested uint64) (uint64, error) {
	res, err := g.client.Eval(ctx, nextSeqScript, []string{g.client.QuoteSeqKey(key)}, requested, g.ttl.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("issue quote sequence: %w", err)
	}
	n, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("issue quote sequence: unexpected reply %T", res)
	}
	if n < 0 {
		return 0, ErrStaleSequence
	}
	return uint64(n), nil
}

// IsLatest treats an expired counter as latest.
func (g *RedisGuard) IsLatest(ctx context.Context, key string, seq uint64) (bool, error) {
	raw, err := g.client.Get(ctx, g.client.QuoteSeqKey(key))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return true, nil
		}
		return false, fmt.Errorf("read quote sequence: %w", err)
	}
	cur, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse quote sequence: %w", err)
	}
	return cur <= seq, nil
}
