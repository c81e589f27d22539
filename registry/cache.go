package registry

import (
	"sync"

	"github.com/datachat-ai/datachat/core"
)

// metaCache holds the per-file metadata computed at registration so Summary
// is O(1). Keys are (sessionID, fileID); values are treated as immutable.
type metaCache struct {
	mu    sync.RWMutex
	metas map[string]map[string]*core.FileMeta
}

func newMetaCache() *metaCache {
	return &metaCache{metas: make(map[string]map[string]*core.FileMeta)}
}

func (c *metaCache) get(sessionID, fileID string) *core.FileMeta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metas[sessionID][fileID]
}

func (c *metaCache) put(sessionID, fileID string, meta *core.FileMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.metas[sessionID]; !ok {
		c.metas[sessionID] = make(map[string]*core.FileMeta)
	}
	c.metas[sessionID][fileID] = meta
}

func (c *metaCache) drop(sessionID, fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.metas[sessionID], fileID)
}

func (c *metaCache) dropSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.metas, sessionID)
}
