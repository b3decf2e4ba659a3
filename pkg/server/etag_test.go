package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameETagRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		gameID  int64
		version int64
	}{
		{1, 1}, {42, 5}, {987654, 1234567},
	} {
		etag := GameETag(tc.gameID, tc.version)
		assert.Equal(t, byte('"'), etag[0])
		assert.Equal(t, byte('"'), etag[len(etag)-1])

		version, ok := ParseGameVersionFromETag(etag)
		require.True(t, ok, "failed to parse %q", etag)
		assert.Equal(t, tc.version, version)
	}
}

func TestGameETagFormat(t *testing.T) {
	assert.Equal(t, `"game-7-v5"`, GameETag(7, 5))
}

func TestParseGameVersionRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"", `"game-7"`, `"foo-7-v5"`, `"game-7-vX"`, "*"} {
		_, ok := ParseGameVersionFromETag(bad)
		assert.False(t, ok, "should reject %q", bad)
	}
}

func TestETagMatches(t *testing.T) {
	current := GameETag(7, 5)
	assert.True(t, ETagMatches(current, current))
	assert.True(t, ETagMatches("*", current), "RFC 9110 wildcard")
	assert.True(t, ETagMatches(`"game-7-v4", "game-7-v5"`, current), "comma-separated list")
	assert.False(t, ETagMatches(`"game-7-v3"`, current))
	assert.False(t, ETagMatches("", current))
}
