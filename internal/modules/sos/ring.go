// README: Fixed-size FIFO ring over history row ids.
package sos

// ringSize caps how many live rows an emergency may hold per user.
const ringSize = 5

// ring tracks which history rows belong to the rolling emergency trail.
// While it has fewer than ringSize entries new samples insert rows; once
// full, samples overwrite the row at cursor, oldest first.
type ring struct {
	rowIDs      []int64
	insertCount int
	cursor      int
}

// restoredRing rebuilds ring state from row ids ordered oldest first,
// as returned by the recent-history query after a process restart.
func restoredRing(ids []int64) ring {
	if len(ids) > ringSize {
		ids = ids[len(ids)-ringSize:]
	}
	r := ring{
		rowIDs:      append([]int64(nil), ids...),
		insertCount: len(ids),
	}
	return r
}

func (r *ring) full() bool {
	return r.insertCount >= ringSize
}

// recordInsert appends a freshly inserted row id.
func (r *ring) recordInsert(id int64) {
	r.rowIDs = append(r.rowIDs, id)
	r.insertCount++
}

// overwriteTarget returns the row id the next sample must update.
// Valid only when the ring is full.
func (r *ring) overwriteTarget() int64 {
	return r.rowIDs[r.cursor]
}

// advance moves the cursor past the row just overwritten.
func (r *ring) advance() {
	r.cursor = (r.cursor + 1) % ringSize
}
