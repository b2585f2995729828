package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// releaseLua deletes a claim only if it still carries the caller's token, so
// a claim that expired and was taken by another replica is left alone.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// ExecutionClaims implements domain.ExecutionClaims with SET NX and a TTL.
//
// Key schema:
//
//	{prefix}:claim:{fingerprint} - random token of the holder
type ExecutionClaims struct {
	c         *Client
	releaseSc *redis.Script
}

// NewExecutionClaims creates claims backed by the given Client.
func NewExecutionClaims(c *Client) *ExecutionClaims {
	return &ExecutionClaims{c: c, releaseSc: redis.NewScript(releaseLua)}
}

// Claim takes fingerprint for ttl. It returns domain.ErrAlreadyExists when
// another holder has it. The returned release func is idempotent.
func (ec *ExecutionClaims) Claim(ctx context.Context, fingerprint string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	key := ec.c.Key("claim", fingerprint)

	ok, err := ec.c.Underlying().SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: claim %s: %w", fingerprint, err)
	}
	if !ok {
		return nil, domain.ErrAlreadyExists
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// The caller's context may already be cancelled.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ec.releaseSc.Run(releaseCtx, ec.c.Underlying(), []string{key}, token).Err()
		})
	}
	return release, nil
}

// Compile-time interface check.
var _ domain.ExecutionClaims = (*ExecutionClaims)(nil)
