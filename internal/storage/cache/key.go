package cache

import (
	"crypto/md5"
	"encoding/hex"
)

// Key derives the stable cache key for a source and a granularity marker
func Key(source, marker string) string {
	sum := md5.Sum([]byte(source + ":" + marker))
	return hex.EncodeToString(sum[:])
}
