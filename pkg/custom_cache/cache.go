package custom_cache

import (
	"context"
	"log"
	"time"

	"github.com/allegro/bigcache"
	"github.com/eko/gocache/lib/v4/cache"
	bigcache_store "github.com/eko/gocache/store/bigcache/v4"
	redis_store "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
)

var MainCache *cache.Cache[string]

const cacheExpiration = 10 * time.Minute

// InitializeCache sets up the parsed feed cache. An in-process bigcache is
// used unless a redis connection string is provided.
func InitializeCache(redisConnectionString string) {
	if redisConnectionString != "" {
		opt, err := redis.ParseURL(redisConnectionString)
		if err != nil {
			log.Fatalf("[FATAL] failed to parse the redis connection string: %v", err)
		}
		redisStore := redis_store.NewRedis(redis.NewClient(opt))
		MainCache = cache.New[string](redisStore)
		log.Print("[INFO] feed cache backed by redis")
		return
	}

	bigcacheClient, err := bigcache.NewBigCache(bigcache.DefaultConfig(cacheExpiration))
	if err != nil {
		log.Fatalf("[FATAL] failed to initialize internal custom_cache: %v", err)
	}
	bigcacheStore := bigcache_store.NewBigcache(bigcacheClient)

	MainCache = cache.New[string](bigcacheStore)
	log.Print("[INFO] feed cache backed by bigcache")
}

func Get(key string) (string, error) {
	return MainCache.Get(context.Background(), key)
}

func Set(key string, value string) error {
	return MainCache.Set(context.Background(), key, value)
}
