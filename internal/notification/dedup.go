package notification

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// dedupSet is a time-bounded set of notification tags. A tag claimed within
// the window cannot be claimed again until it expires.
type dedupSet struct {
	items *cache.Cache
}

func newDedupSet(window time.Duration) *dedupSet {
	return &dedupSet{items: cache.New(window, window*2)}
}

// claim adds tag and reports whether it was absent.
func (d *dedupSet) claim(tag string) bool {
	return d.items.Add(tag, struct{}{}, cache.DefaultExpiration) == nil
}

// release forgets tag so a later delivery may retry it.
func (d *dedupSet) release(tag string) {
	d.items.Delete(tag)
}

func (d *dedupSet) len() int {
	return d.items.ItemCount()
}
