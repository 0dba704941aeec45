package rconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalcSlotHonorsHashTag(t *testing.T) {
	tagged := CalcSlot([]byte("user:{42}:profile"))
	sameTagDifferentKey := CalcSlot([]byte("user:{42}:settings"))
	assert.Equal(t, tagged, sameTagDifferentKey, "keys sharing a hash tag must land on the same slot")
}

func TestCalcSlotEmptyTagFallsBackToWholeKey(t *testing.T) {
	a := CalcSlot([]byte("{}foo"))
	wholeKey := int(crc16([]byte("{}foo"))) % slotCount
	assert.Equal(t, wholeKey, a)
}

func TestCalcSlotWithinRange(t *testing.T) {
	slot := CalcSlot([]byte("some-key"))
	assert.GreaterOrEqual(t, slot, 0)
	assert.Less(t, slot, slotCount)
}
