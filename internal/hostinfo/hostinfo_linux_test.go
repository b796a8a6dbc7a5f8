//go:build linux

package hostinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryMBScalesByUnit(t *testing.T) {
	total, free := memoryMB(4*1024*1024, 1024*1024, 1024)
	assert.Equal(t, uint64(4096), total)
	assert.Equal(t, uint64(1024), free)

	total, _ = memoryMB(2*1024*1024, 0, 0)
	assert.Equal(t, uint64(2), total)
}
