package txn

// Visible implements the MVCC visibility rule: a
// transaction T holding snapshot S (the active-tx-id set taken at the
// current statement's boundary) sees a row version iff xmin has
// committed (is not in S and xmin <= T, with the writing transaction
// always seeing its own writes) and xmax is either absent, uncommitted
// at snapshot time, or strictly greater than T. A row version whose xmax
// is T itself is never visible to T.
func Visible(xmin uint64, xmax *uint64, readerTx uint64, snapshot map[uint64]bool) bool {
	xminVisible := xmin == readerTx || (!snapshot[xmin] && xmin <= readerTx)
	if !xminVisible {
		return false
	}
	if xmax == nil {
		return true
	}
	if *xmax == readerTx {
		return false
	}
	if snapshot[*xmax] {
		return true
	}
	return *xmax > readerTx
}
