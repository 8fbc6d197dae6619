package wal

import (
	"postgrustql/internal/storage"
	"postgrustql/internal/storage/page"
	"postgrustql/internal/types"
)

// Recovered summarizes a scan of the WAL for startup recovery: the
// highest LSN seen and the set of transaction ids that reached Commit
// before end-of-log.
type Recovered struct {
	HighestLSN  uint64
	Committed   map[uint64]bool
	records     []Record
	checkpoint  *Record
}

// Scan reads every segment in dir and classifies transactions as
// committed or not, without applying anything yet. Use Redo to apply the
// result against table storage.
func Scan(dir string) (*Recovered, error) {
	segs, err := listSegments(dir)
	if err != nil {
		return nil, err
	}

	rec := &Recovered{Committed: make(map[uint64]bool)}
	for _, num := range segs {
		recs, err := readSegment(segmentPath(dir, num))
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if r.LSN > rec.HighestLSN {
				rec.HighestLSN = r.LSN
			}
			switch r.Kind {
			case KindCommit:
				rec.Committed[r.TxID] = true
			case KindCheckpoint:
				cp := r
				rec.checkpoint = &cp
			}
			rec.records = append(rec.records, r)
		}
	}
	return rec, nil
}

func segmentPath(dir string, num uint64) string {
	return dir + "/" + segmentName(num)
}

// MaxTxID returns the highest transaction id mentioned anywhere in the
// scanned log (Begin, Commit, or Abort), or 0 if the log is empty. A
// fresh txn.Manager's counter must start above this so recovery never
// reissues an id a pre-crash transaction already used.
func (r *Recovered) MaxTxID() uint64 {
	var max uint64
	for _, rec := range r.records {
		switch rec.Kind {
		case KindBegin, KindCommit, KindAbort:
			if rec.TxID > max {
				max = rec.TxID
			}
		}
	}
	return max
}

// LastCheckpointLSN reports the LSN of the latest Checkpoint record seen,
// and whether one was found at all.
func (r *Recovered) LastCheckpointLSN() (uint64, bool) {
	if r.checkpoint == nil {
		return 0, false
	}
	return r.checkpoint.LSN, true
}

// TableResolver maps a table name appearing in the log to the storage it
// should be replayed against.
type TableResolver func(table string) storage.RowStorage

// Redo replays Insert/Delete records belonging to committed
// transactions. Insert payloads are
// full encoded tuples reinserted via RowStorage.Insert; Delete records
// re-stamp xmax on the referenced row via StampXmax, tolerating a
// missing row (already physically removed by a prior VACUUM before the
// crash).
func (r *Recovered) Redo(resolve TableResolver) error {
	checkpointLSN, hasCheckpoint := r.LastCheckpointLSN()
	for _, rec := range r.records {
		if rec.Kind != KindInsert && rec.Kind != KindDelete {
			continue
		}
		// The server's checkpoint flushes every dirty page before calling
		// WriteCheckpoint, which appends the Checkpoint record, so every change with an
		// earlier LSN is already durable in the table's page file;
		// redoing it again would reinsert (or re-delete) the same row a
		// second time.
		if hasCheckpoint && rec.LSN <= checkpointLSN {
			continue
		}
		if !r.Committed[rec.TxID] {
			continue
		}
		st := resolve(rec.Table)
		if st == nil {
			continue
		}
		switch rec.Kind {
		case KindInsert:
			xmin, _, values, err := decodeRowPayload(rec.Payload)
			if err != nil {
				return err
			}
			if _, err := st.Insert(xmin, values); err != nil {
				return err
			}
		case KindDelete:
			if err := st.StampXmax(rec.Row, rec.TxID); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeRowPayload unwraps an Insert record's payload, which stores the
// full page-format tuple encoding, reusing the page package's tuple codec rather than a second
// encoding.
func decodeRowPayload(payload []byte) (uint64, *uint64, []types.Value, error) {
	return page.DecodeTuple(payload)
}
