package storage

import (
	"fmt"
	"hash/crc32"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// NewID returns an opaque identifier combining a coarse timestamp with a
// short random suffix. Collisions are possible in principle but negligible
// at single-user request rates; this is a documented limitation, not a
// guarantee.
func NewID() string {
	return strconv.FormatInt(time.Now().UTC().Unix(), 36) + "-" + uuid.NewString()[:8]
}

// fallbackID rebuilds a stable identifier for a persisted entity that lost
// its id. It is derived from the entity's position and content so that
// re-normalizing the same input yields the same id every time.
func fallbackID(kind string, index int, content string) string {
	sum := crc32.Checksum([]byte(strconv.Itoa(index)+"\x00"+content), crcTable)
	return fmt.Sprintf("%s-%08x", kind, sum)
}

// Now returns the instant used for generated timestamps. All persisted
// times are UTC.
func Now() time.Time {
	return time.Now().UTC()
}
