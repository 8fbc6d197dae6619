package wal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/klauspost/compress/gzip"

	"postgrustql/internal/catalog"
)

// WriteCheckpoint serializes the catalog to a gzip-compressed
// catalog.bin snapshot and appends a matching Checkpoint
// WAL record naming the transactions still active at the moment the
// snapshot was taken. Recovery reads every segment but skips the
// Insert/Delete records at or before the latest Checkpoint record's LSN.
func (w *Writer) WriteCheckpoint(path string, inst *catalog.ServerInstance, activeTxIDs []uint64) (uint64, error) {
	snap := inst.Snapshot()
	raw, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("wal: marshal checkpoint: %w", err)
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return 0, fmt.Errorf("wal: compress checkpoint: %w", err)
	}
	if err := gw.Close(); err != nil {
		return 0, fmt.Errorf("wal: compress checkpoint: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("wal: write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, fmt.Errorf("wal: install checkpoint file: %w", err)
	}

	lsn, err := w.Append(Record{Kind: KindCheckpoint, ActiveTxIDs: activeTxIDs})
	if err != nil {
		return 0, err
	}
	if err := w.Sync(); err != nil {
		return 0, err
	}
	return lsn, nil
}

// LoadCheckpoint reads and decompresses a catalog.bin snapshot written by
// WriteCheckpoint.
func LoadCheckpoint(path string) (*catalog.ServerInstance, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wal: read checkpoint file: %w", err)
	}
	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("wal: decompress checkpoint: %w", err)
	}
	defer gr.Close()

	var snap catalog.InstanceSnapshot
	if err := json.NewDecoder(gr).Decode(&snap); err != nil {
		return nil, fmt.Errorf("wal: decode checkpoint: %w", err)
	}
	return catalog.RestoreInstance(snap), nil
}
