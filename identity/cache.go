package identity

import "sync"

// TokenCache holds at most one token for the process.
type TokenCache struct {
	lock  sync.Mutex
	token *BearerToken
}

// Get returns the cached token, or nil.
func (c *TokenCache) Get() *BearerToken {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.token
}

// Set replaces the cached token.
func (c *TokenCache) Set(t *BearerToken) {
	c.lock.Lock()
	c.token = t
	c.lock.Unlock()
}

// SetIfEmpty caches t unless a token is already cached,
// and returns the token that is cached after the call.
func (c *TokenCache) SetIfEmpty(t *BearerToken) *BearerToken {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.token == nil {
		c.token = t
	}
	return c.token
}

// Clear drops the cached token.
func (c *TokenCache) Clear() {
	c.Set(nil)
}
