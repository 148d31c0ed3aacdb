package bufferpool

import (
	"container/list"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tuannm99/novastore/internal/storage"
	"go.uber.org/multierr"
)

var (
	DefaultCapacity = 128

	ErrEvictFailed = errors.New("bufferpool: write-back of evicted page failed")
)

// PageTag identifies a cached page. Page ids are unique within a table only.
type PageTag struct {
	TableID int
	PageID  int
}

func (t PageTag) String() string { return fmt.Sprintf("%d:%d", t.TableID, t.PageID) }

// PageWriter persists a dirty page; storage.StorageManager implements it.
type PageWriter interface {
	WritePage(p *storage.Page) error
}

var _ PageWriter = (*storage.StorageManager)(nil)

type frame struct {
	tag  PageTag
	page *storage.Page
}

// Cache is a bounded LRU of pages shared by every table. A dirty page is
// written through the PageWriter before it leaves the cache, whether by
// eviction or by Remove. The cache never loads pages itself: on a miss the
// caller reads from disk and calls Put.
type Cache struct {
	w        PageWriter
	capacity int

	mu        sync.Mutex
	lru       *list.List // front == most recently used
	pageTable map[PageTag]*list.Element
}

func NewCache(w PageWriter, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		w:         w,
		capacity:  capacity,
		lru:       list.New(),
		pageTable: make(map[PageTag]*list.Element, capacity),
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Get returns a cached page and marks it most recently used.
func (c *Cache) Get(tableID, pageID int) (*storage.Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.pageTable[PageTag{tableID, pageID}]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(e)
	return e.Value.(*frame).page, true
}

// Contains reports whether a page is cached without touching its recency.
func (c *Cache) Contains(tableID, pageID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pageTable[PageTag{tableID, pageID}]
	return ok
}

// Put inserts p under (p.TableID, p.ID) or refreshes it. When the cache is
// full the least recently used page is evicted first; if that page is dirty
// it is written back before it is dropped. If the write-back fails the
// victim stays cached, p is not inserted and the error is returned.
func (c *Cache) Put(p *storage.Page) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refreshLocked(p) {
		return nil
	}
	for c.lru.Len() >= c.capacity {
		if err := c.evictLocked(); err != nil {
			return err
		}
	}
	c.pushLocked(p)
	return nil
}

// Admit inserts or refreshes p without evicting anything, so it cannot
// fail. The cache may go over capacity until the next Trim or Put.
func (c *Cache) Admit(p *storage.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.refreshLocked(p) {
		c.pushLocked(p)
	}
}

// Reserve evicts until n more pages fit without eviction, or the cache is
// empty. A failed write-back stops it; pages already evicted were written
// and stay evicted.
func (c *Cache) Reserve(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.lru.Len() > 0 && c.lru.Len()+n > c.capacity {
		if err := c.evictLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Trim evicts until the cache is back within capacity.
func (c *Cache) Trim() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.lru.Len() > c.capacity {
		if err := c.evictLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) refreshLocked(p *storage.Page) bool {
	e, ok := c.pageTable[PageTag{p.TableID, p.ID}]
	if !ok {
		return false
	}
	f := e.Value.(*frame)
	if f.page != p && f.page.Dirty {
		p.Dirty = true
	}
	f.page = p
	c.lru.MoveToFront(e)
	return true
}

func (c *Cache) pushLocked(p *storage.Page) {
	tag := PageTag{p.TableID, p.ID}
	c.pageTable[tag] = c.lru.PushFront(&frame{tag: tag, page: p})
}

func (c *Cache) evictLocked() error {
	e := c.lru.Back()
	if e == nil {
		return nil
	}
	victim := e.Value.(*frame)

	if victim.page.Dirty {
		if err := c.w.WritePage(victim.page); err != nil {
			return fmt.Errorf("%w: page %s: %w", ErrEvictFailed, victim.tag, err)
		}
	}

	c.lru.Remove(e)
	delete(c.pageTable, victim.tag)
	slog.Debug("bufferpool.evict", "table", victim.tag.TableID, "page", victim.tag.PageID)
	return nil
}

// MarkDirty flags a cached page as modified. It reports whether the page was
// cached.
func (c *Cache) MarkDirty(tableID, pageID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.pageTable[PageTag{tableID, pageID}]
	if !ok {
		return false
	}
	e.Value.(*frame).page.Dirty = true
	return true
}

// Remove drops a page from the cache, writing it back first if dirty.
func (c *Cache) Remove(tableID, pageID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tag := PageTag{tableID, pageID}
	e, ok := c.pageTable[tag]
	if !ok {
		return nil
	}
	f := e.Value.(*frame)
	if f.page.Dirty {
		if err := c.w.WritePage(f.page); err != nil {
			return err
		}
	}
	c.lru.Remove(e)
	delete(c.pageTable, tag)
	return nil
}

// Discard drops a page without writing it, for pages whose storage is gone.
func (c *Cache) Discard(tableID, pageID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tag := PageTag{tableID, pageID}
	if e, ok := c.pageTable[tag]; ok {
		c.lru.Remove(e)
		delete(c.pageTable, tag)
	}
}

// Shift renumbers every cached page of tableID with id >= from by delta,
// following a page insert (delta 1) or removal (delta -1) in the table.
// Recency is preserved.
func (c *Cache) Shift(tableID, from, delta int) {
	if delta == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var moved []*list.Element
	for tag, e := range c.pageTable {
		if tag.TableID == tableID && tag.PageID >= from {
			moved = append(moved, e)
			delete(c.pageTable, tag)
		}
	}
	for _, e := range moved {
		f := e.Value.(*frame)
		f.tag.PageID += delta
		f.page.ID = f.tag.PageID
		c.pageTable[f.tag] = e
	}
	if len(moved) > 0 {
		slog.Debug("bufferpool.shift", "table", tableID, "from", from, "delta", delta, "pages", len(moved))
	}
}

// FlushTable writes back every dirty page of tableID. Pages stay cached.
func (c *Cache) FlushTable(tableID int) error {
	return c.flush(func(t PageTag) bool { return t.TableID == tableID })
}

// FlushAll writes back every dirty page. All pages are attempted; the
// errors are combined.
func (c *Cache) FlushAll() error {
	return c.flush(func(PageTag) bool { return true })
}

func (c *Cache) flush(match func(PageTag) bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for e := c.lru.Back(); e != nil; e = e.Prev() {
		f := e.Value.(*frame)
		if !match(f.tag) || !f.page.Dirty {
			continue
		}
		err = multierr.Append(err, c.w.WritePage(f.page))
	}
	return err
}

// DropTable discards every cached page of tableID without writing it.
func (c *Cache) DropTable(tableID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for e := c.lru.Front(); e != nil; {
		next := e.Next()
		f := e.Value.(*frame)
		if f.tag.TableID == tableID {
			c.lru.Remove(e)
			delete(c.pageTable, f.tag)
		}
		e = next
	}
}

// Pages returns the cached tags from most to least recently used.
func (c *Cache) Pages() []PageTag {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]PageTag, 0, c.lru.Len())
	for e := c.lru.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*frame).tag)
	}
	return out
}
