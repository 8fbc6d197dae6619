package page

import (
	"fmt"
	"os"
	"sync"
)

// File is the on-disk backing store for one table: a flat file of
// fixed-size pages, addressed by page id.
type File struct {
	mu       sync.Mutex
	f        *os.File
	numPages uint32
}

// Open opens (creating if absent) the page file at path.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open page file %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat page file %s: %w", path, err)
	}
	return &File{f: f, numPages: uint32(info.Size() / Size)}, nil
}

func (pf *File) Close() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.f.Close()
}

func (pf *File) NumPages() uint32 {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.numPages
}

// ReadPage reads page id's raw bytes from disk.
func (pf *File) ReadPage(id ID) ([Size]byte, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	var buf [Size]byte
	_, err := pf.f.ReadAt(buf[:], int64(id)*Size)
	if err != nil {
		return buf, fmt.Errorf("read page %d: %w", id, err)
	}
	return buf, nil
}

// WritePage writes raw page bytes to disk. It does not fsync: callers
// (the buffer pool) are responsible for obeying the write-ahead rule
// before flushing a dirty page.
func (pf *File) WritePage(id ID, raw [Size]byte) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	_, err := pf.f.WriteAt(raw[:], int64(id)*Size)
	if err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	if uint32(id) >= pf.numPages {
		pf.numPages = uint32(id) + 1
	}
	return nil
}

// AllocatePage reserves and returns the next page id; the page is not
// written to disk until the caller writes through it.
func (pf *File) AllocatePage() ID {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	id := ID(pf.numPages)
	pf.numPages++
	return id
}

func (pf *File) Sync() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.f.Sync()
}
