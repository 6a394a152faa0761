package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CachedChecker memoizes answers of another Checker in redis for ttl.
// Redis failures fall through to the wrapped checker.
type CachedChecker struct {
	next   Checker
	client *redis.Client
	ttl    time.Duration
	log    logrus.FieldLogger
}

func NewCachedChecker(next Checker, client *redis.Client, ttl time.Duration, log logrus.FieldLogger) *CachedChecker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedChecker{next: next, client: client, ttl: ttl, log: log}
}

func cacheKey(ref Ref) string {
	return fmt.Sprintf("enrollment:%s:%s:%s", ref.EnrollmentID, ref.StudentID, ref.ModuleID)
}

func (c *CachedChecker) IsEnrolled(ctx context.Context, ref Ref) (bool, error) {
	key := cacheKey(ref)
	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return val == "1", nil
	case !errors.Is(err, redis.Nil):
		c.log.WithError(err).Warn("enrollment cache read failed")
	}

	ok, err := c.next.IsEnrolled(ctx, ref)
	if err != nil {
		return false, err
	}
	v := "0"
	if ok {
		v = "1"
	}
	if err := c.client.Set(ctx, key, v, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("enrollment cache write failed")
	}
	return ok, nil
}

// Invalidate drops a cached answer, e.g. after an enrollment is withdrawn.
func (c *CachedChecker) Invalidate(ctx context.Context, ref Ref) error {
	return c.client.Del(ctx, cacheKey(ref)).Err()
}
