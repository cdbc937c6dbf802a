package engine

import (
	"sync"

	"go.mau.fi/whatsmeow/proto/waE2E"
)

// msgCache keeps recently seen messages by id so DownloadMedia can resolve a
// message id back to its downloadable payload descriptor. Bounded FIFO.
type msgCache struct {
	mu   sync.Mutex
	cap  int
	ids  []string
	byID map[string]*waE2E.Message
}

func newMsgCache(capacity int) *msgCache {
	return &msgCache{
		cap:  capacity,
		byID: make(map[string]*waE2E.Message, capacity),
	}
}

func (c *msgCache) put(id string, msg *waE2E.Message) {
	if id == "" || msg == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[id]; ok {
		return
	}
	if len(c.ids) >= c.cap {
		oldest := c.ids[0]
		c.ids = c.ids[1:]
		delete(c.byID, oldest)
	}
	c.ids = append(c.ids, id)
	c.byID[id] = msg
}

func (c *msgCache) get(id string) (*waE2E.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.byID[id]
	return msg, ok
}
