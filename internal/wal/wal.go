package wal

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// segmentSize is the rotation threshold.
const segmentSize = 16 * 1024 * 1024

// Writer appends records to the active WAL segment, issuing strictly
// increasing LSNs.
type Writer struct {
	mu       sync.Mutex
	dir      string
	log      *zap.Logger
	file     *os.File
	segNum   uint64
	segSize  int64
	nextLSN  uint64
	unsynced uint64 // highest LSN appended but not yet fsynced
	synced   uint64 // highest LSN known durable
}

// Open opens (or creates) a WAL directory, positioning the writer after
// the last record of the highest-numbered existing segment.
func Open(dir string, log *zap.Logger) (*Writer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir %s: %w", dir, err)
	}
	w := &Writer{dir: dir, log: log, nextLSN: 1}

	segs, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		if err := w.openSegment(0); err != nil {
			return nil, err
		}
		return w, nil
	}

	last := segs[len(segs)-1]
	if err := w.openSegment(last); err != nil {
		return nil, err
	}
	info, err := w.file.Stat()
	if err != nil {
		return nil, err
	}
	w.segSize = info.Size()

	lastLSN, err := scanHighestLSN(dir, segs)
	if err != nil {
		return nil, err
	}
	w.nextLSN = lastLSN + 1
	w.synced = lastLSN
	w.unsynced = lastLSN
	return w, nil
}

func (w *Writer) openSegment(num uint64) error {
	path := filepath.Join(w.dir, segmentName(num))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("wal: open segment %s: %w", path, err)
	}
	w.file = f
	w.segNum = num
	w.segSize = 0
	return nil
}

func segmentName(num uint64) string {
	return fmt.Sprintf("%08d.wal", num)
}

func listSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("wal: list segments in %s: %w", dir, err)
	}
	var nums []uint64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".wal" {
			continue
		}
		var n uint64
		if _, err := fmt.Sscanf(e.Name(), "%08d.wal", &n); err == nil {
			nums = append(nums, n)
		}
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums, nil
}

func scanHighestLSN(dir string, segs []uint64) (uint64, error) {
	var highest uint64
	for _, num := range segs {
		recs, err := readSegment(filepath.Join(dir, segmentName(num)))
		if err != nil {
			return 0, err
		}
		for _, r := range recs {
			if r.LSN > highest {
				highest = r.LSN
			}
		}
	}
	return highest, nil
}

// Append assigns the next LSN to rec, writes it to the active segment,
// and rotates to a new segment if the size threshold is crossed. It does
// not fsync; callers obeying the commit rule must call Sync afterward.
func (w *Writer) Append(rec Record) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec.LSN = w.nextLSN
	w.nextLSN++

	buf := rec.Encode()
	n, err := w.file.Write(buf)
	if err != nil {
		return 0, fmt.Errorf("wal: append %s record: %w", rec.Kind, err)
	}
	w.segSize += int64(n)
	w.unsynced = rec.LSN

	if w.segSize >= segmentSize {
		if err := w.rotateLocked(); err != nil {
			return rec.LSN, err
		}
	}
	return rec.LSN, nil
}

func (w *Writer) rotateLocked() error {
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync before rotate: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close segment %d: %w", w.segNum, err)
	}
	return w.openSegment(w.segNum + 1)
}

// Sync fsyncs the active segment, retrying transient failures with
// bounded exponential backoff. After it returns nil, every LSN appended
// so far is durable.
func (w *Writer) Sync() error {
	w.mu.Lock()
	f := w.file
	target := w.unsynced
	w.mu.Unlock()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 5 * time.Second
	err := backoff.Retry(func() error {
		return f.Sync()
	}, bo)
	if err != nil {
		w.log.Error("wal fsync failed", zap.Error(err))
		return fmt.Errorf("wal: fsync: %w", err)
	}

	w.mu.Lock()
	if target > w.synced {
		w.synced = target
	}
	w.mu.Unlock()
	return nil
}

// Durable reports the highest LSN known to be fsynced to stable storage.
func (w *Writer) Durable() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.synced
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// readSegment parses every complete record in one segment file, in
// order, stopping (without error) at the first truncated/partial record
// (the tail of a segment being written when the process crashed).
func readSegment(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wal: read segment %s: %w", path, err)
	}
	var recs []Record
	off := 0
	for off < len(data) {
		if len(data)-off < 12 {
			break
		}
		lsn := binary.BigEndian.Uint64(data[off : off+8])
		bodyLen := binary.BigEndian.Uint32(data[off+8 : off+12])
		off += 12
		if uint32(len(data)-off) < bodyLen {
			break
		}
		rec, err := decodeBody(lsn, data[off:off+int(bodyLen)])
		if err != nil {
			break
		}
		recs = append(recs, rec)
		off += int(bodyLen)
	}
	return recs, nil
}
