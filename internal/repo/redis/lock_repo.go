package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const broadcastLockPrefix = "broadcast:lock:"

var releaseLockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockRepo guards a broadcast job so that only one sender works on it at a time.
type LockRepo struct {
	client *goredis.Client
}

func NewLockRepo(client *goredis.Client) *LockRepo {
	return &LockRepo{client: client}
}

// AcquireJob returns a release token when the lock was taken, or "" when
// another holder owns it.
func (r *LockRepo) AcquireJob(ctx context.Context, jobID int64, ttl time.Duration) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	if jobID <= 0 || ttl <= 0 {
		return "", fmt.Errorf("invalid lock payload")
	}

	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, jobLockKey(jobID), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire broadcast lock: %w", err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// ReleaseJob drops the lock only if it is still held with token.
func (r *LockRepo) ReleaseJob(ctx context.Context, jobID int64, token string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if token == "" {
		return nil
	}

	if err := releaseLockScript.Run(ctx, r.client, []string{jobLockKey(jobID)}, token).Err(); err != nil && err != goredis.Nil {
		return fmt.Errorf("release broadcast lock: %w", err)
	}
	return nil
}

func jobLockKey(jobID int64) string {
	return broadcastLockPrefix + strconv.FormatInt(jobID, 10)
}
