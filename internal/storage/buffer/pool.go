// Package buffer implements the fixed-capacity LRU page cache fronting
// the page files: a page map, per-frame dirty flag, per-frame pin count,
// and LRU order over unpinned frames. Frames are addressed by integer
// index rather than by pointer.
package buffer

import (
	"container/list"
	"fmt"
	"sync"

	"postgrustql/internal/catalog"
	"postgrustql/internal/storage/page"
)

// PageFile is the subset of page.File the pool needs; storage.Table
// implementations provide one per table.
type PageFile interface {
	ReadPage(id page.ID) ([page.Size]byte, error)
	WritePage(id page.ID, raw [page.Size]byte) error
}

type frame struct {
	pageID ID
	p      *page.Page
	dirty  bool
	pins   int
}

// ID scopes a page id to the table/file it belongs to, since one pool is
// shared across every table's page file.
type ID struct {
	File PageFile
	Page page.ID
}

// Pool is a fixed-size buffer pool shared by every table's page file.
type Pool struct {
	mu         sync.Mutex
	capacity   int
	frames     []frame // index == frame index
	freeList   []int
	byPage     map[ID]int // pageID -> frame index
	lru        *list.List // holds frame indices, front = most recently used
	lruElem    map[int]*list.Element
}

// New creates a pool with room for capacity pages.
func New(capacity int) *Pool {
	p := &Pool{
		capacity: capacity,
		frames:   make([]frame, capacity),
		byPage:   make(map[ID]int, capacity),
		lru:      list.New(),
		lruElem:  make(map[int]*list.Element, capacity),
	}
	for i := 0; i < capacity; i++ {
		p.freeList = append(p.freeList, i)
	}
	return p
}

// Fetch returns a pinned reference to id's page, loading it from disk on
// a cache miss, evicting the least-recently-used unpinned frame if the
// pool is full.
func (p *Pool) Fetch(id ID) (*page.Page, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fi, ok := p.byPage[id]; ok {
		p.frames[fi].pins++
		p.touch(fi)
		return p.frames[fi].p, fi, nil
	}

	fi, err := p.allocateFrame()
	if err != nil {
		return nil, 0, err
	}

	raw, err := id.File.ReadPage(id.Page)
	if err != nil {
		p.freeList = append(p.freeList, fi)
		return nil, 0, err
	}
	pg, err := page.Load(raw)
	if err != nil {
		p.freeList = append(p.freeList, fi)
		return nil, 0, &catalog.Error{ErrorKind: catalog.KindSerialization, Entity: "page", Name: fmt.Sprint(id.Page), Message: err.Error()}
	}

	p.frames[fi] = frame{pageID: id, p: pg, pins: 1}
	p.byPage[id] = fi
	p.touch(fi)
	return pg, fi, nil
}

// FetchNew installs an already-constructed (empty) page into the pool
// without reading it from disk, for newly allocated pages.
func (p *Pool) FetchNew(id ID, pg *page.Page) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fi, err := p.allocateFrame()
	if err != nil {
		return 0, err
	}
	p.frames[fi] = frame{pageID: id, p: pg, pins: 1, dirty: true}
	p.byPage[id] = fi
	p.touch(fi)
	return fi, nil
}

// allocateFrame returns a free frame index, evicting an unpinned LRU
// victim if the pool has none free. Caller holds p.mu.
func (p *Pool) allocateFrame() (int, error) {
	if len(p.freeList) > 0 {
		fi := p.freeList[len(p.freeList)-1]
		p.freeList = p.freeList[:len(p.freeList)-1]
		return fi, nil
	}

	for e := p.lru.Back(); e != nil; e = e.Prev() {
		fi := e.Value.(int)
		if p.frames[fi].pins > 0 {
			continue
		}
		if p.frames[fi].dirty {
			if err := p.flushLocked(fi); err != nil {
				return 0, err
			}
		}
		delete(p.byPage, p.frames[fi].pageID)
		p.lru.Remove(e)
		delete(p.lruElem, fi)
		p.frames[fi] = frame{}
		return fi, nil
	}
	return 0, fmt.Errorf("buffer pool exhausted: all %d frames pinned", p.capacity)
}

// Unpin releases a pin taken by Fetch/FetchNew, marking the frame dirty
// if madeDirty is true.
func (p *Pool) Unpin(fi int, madeDirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fi < 0 || fi >= len(p.frames) || p.frames[fi].p == nil {
		return fmt.Errorf("unpin: invalid frame %d", fi)
	}
	if p.frames[fi].pins == 0 {
		return fmt.Errorf("unpin: frame %d not pinned", fi)
	}
	p.frames[fi].pins--
	if madeDirty {
		p.frames[fi].dirty = true
	}
	return nil
}

// Flush writes a dirty frame through to disk if dirty, clearing the
// dirty flag on success.
func (p *Pool) Flush(fi int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(fi)
}

func (p *Pool) flushLocked(fi int) error {
	f := &p.frames[fi]
	if f.p == nil || !f.dirty {
		return nil
	}
	if err := f.pageID.File.WritePage(f.pageID.Page, f.p.Bytes()); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// FlushAll writes every dirty frame through to disk; used at checkpoint.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for fi := range p.frames {
		if p.frames[fi].p == nil {
			continue
		}
		if err := p.flushLocked(fi); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pool) touch(fi int) {
	if e, ok := p.lruElem[fi]; ok {
		p.lru.MoveToFront(e)
		return
	}
	p.lruElem[fi] = p.lru.PushFront(fi)
}

// Stats reports coarse pool occupancy, for diagnostics/logging.
type Stats struct {
	Capacity int
	InUse    int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Capacity: p.capacity, InUse: len(p.byPage)}
}
