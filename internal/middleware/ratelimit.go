package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimit limits requests per client IP. rate uses limiter's format, e.g. "300-M".
// A nil client selects the in-memory store.
func RateLimit(rate string, client *redis.Client) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", rate, err)
	}

	var store limiter.Store
	if client != nil {
		store, err = sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "p2p:ratelimit"})
		if err != nil {
			return nil, fmt.Errorf("redis rate limit store: %w", err)
		}
	} else {
		store = memory.NewStore()
	}

	return mgin.NewMiddleware(limiter.New(store, r)), nil
}
