package server

import (
	"fmt"
	"strconv"
	"strings"
)

// GameETag builds the strong ETag for a game at a version, double quotes
// included: `"game-{id}-v{version}"`.
func GameETag(gameID, version int64) string {
	return fmt.Sprintf("\"game-%d-v%d\"", gameID, version)
}

// ParseGameVersionFromETag recovers the version from a game ETag produced by
// GameETag.
func ParseGameVersionFromETag(etag string) (int64, bool) {
	trimmed := strings.Trim(strings.TrimSpace(etag), "\"")
	idx := strings.LastIndex(trimmed, "-v")
	if !strings.HasPrefix(trimmed, "game-") || idx < 0 {
		return 0, false
	}
	version, err := strconv.ParseInt(trimmed[idx+2:], 10, 64)
	if err != nil {
		return 0, false
	}
	return version, true
}

// ETagMatches implements the If-None-Match comparison: the RFC 9110 `*`
// wildcard matches anything, otherwise any comma-separated entry equal to the
// current ETag matches.
func ETagMatches(ifNoneMatch, current string) bool {
	header := strings.TrimSpace(ifNoneMatch)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, part := range strings.Split(header, ",") {
		if strings.TrimSpace(part) == current {
			return true
		}
	}
	return false
}
