package imager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func assertAllocated(t *testing.T, path string, size int64) {
	t.Helper()

	var st unix.Stat_t
	require.NoError(t, unix.Stat(path, &st))

	// st_blocks is in 512 byte units regardless of the filesystem block size.
	assert.GreaterOrEqual(t, st.Blocks*512, size)
}
