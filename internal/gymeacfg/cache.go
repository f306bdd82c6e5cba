package gymeacfg

import (
	"strconv"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/gymon/internal/command"
)

// ColorSource yields the display color of one instance.
type ColorSource interface {
	Color(instance int) (string, error)
}

// DisplayCache memoizes instance display labels for the life of the process.
// Entries never expire and are only written after a successful lookup.
type DisplayCache struct {
	source ColorSource
	cache  *gocache.Cache
}

func NewDisplayCache(source ColorSource) *DisplayCache {
	return &DisplayCache{
		source: source,
		cache:  gocache.New(gocache.NoExpiration, 0),
	}
}

// Label returns the cached label for instance, loading it on first use.
func (c *DisplayCache) Label(instance int) (string, bool) {
	if !command.ValidInstance(instance) || c == nil {
		return "", false
	}
	key := strconv.Itoa(instance)
	if v, ok := c.cache.Get(key); ok {
		if label, ok := v.(string); ok {
			return label, true
		}
	}
	if c.source == nil {
		return "", false
	}
	label, err := c.source.Color(instance)
	if err != nil {
		log.Debug().Int("instance", instance).Err(err).Msg("display label lookup failed")
		return "", false
	}
	c.cache.Set(key, label, gocache.NoExpiration)
	return label, true
}

// Cached reports how many instances have a label populated.
func (c *DisplayCache) Cached() int {
	if c == nil {
		return 0
	}
	return c.cache.ItemCount()
}
