package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeduplicationTracker(t *testing.T) {
	d := NewDeduplicationTracker()
	assert.False(t, d.HasSeen("m1"))

	d.MarkSeen("m1")
	d.MarkSeen("m1")
	assert.True(t, d.HasSeen("m1"))
	assert.Equal(t, 1, d.Len())

	// 空 id 不記錄
	d.MarkSeen("")
	assert.Equal(t, 1, d.Len())

	d.Reset([]string{"m2", "m3", ""})
	assert.False(t, d.HasSeen("m1"))
	assert.True(t, d.HasSeen("m2"))
	assert.True(t, d.HasSeen("m3"))
	assert.Equal(t, 2, d.Len())
}
