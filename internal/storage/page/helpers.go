package page

import (
	"math"
	"time"

	"github.com/google/uuid"
)

func mathFloatBits(f float64) uint64    { return math.Float64bits(f) }
func mathFloatFromBits(b uint64) float64 { return math.Float64frombits(b) }

func secToUTC(sec int64) time.Time  { return time.Unix(sec, 0).UTC() }
func nsecToUTC(nsec int64) time.Time { return time.Unix(0, nsec).UTC() }

func uuidFromBytes(b []byte) (uuid.UUID, error) {
	return uuid.FromBytes(b)
}
