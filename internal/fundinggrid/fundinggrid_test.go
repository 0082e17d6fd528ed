package fundinggrid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flemosr/quantoxide-sub000/internal/fundinggrid"
)

func TestIsValidSettlementTime_PhaseBoundaries(t *testing.T) {
	assert.True(t, fundinggrid.IsValidSettlementTime(fundinggrid.SettlementAEnd))
	assert.True(t, fundinggrid.IsValidSettlementTime(fundinggrid.SettlementBStart))
	assert.True(t, fundinggrid.IsValidSettlementTime(fundinggrid.SettlementBEnd))
	assert.True(t, fundinggrid.IsValidSettlementTime(fundinggrid.SettlementCStart))
}

func TestIsValidSettlementTime_RejectsOffGrid(t *testing.T) {
	assert.False(t, fundinggrid.IsValidSettlementTime(fundinggrid.SettlementBStart.Add(1)))
}

func TestFloorCeilSettlementTime_RoundTrip(t *testing.T) {
	mid := fundinggrid.SettlementBStart.Add(3 * 60 * 60 * 1e9) // +3h, within an 8h phase-B bucket
	floor := fundinggrid.FloorSettlementTime(mid)
	assert.True(t, fundinggrid.IsValidSettlementTime(floor))
	assert.True(t, !floor.After(mid))

	ceil := fundinggrid.CeilSettlementTime(mid)
	assert.True(t, fundinggrid.IsValidSettlementTime(ceil))
	assert.True(t, !ceil.Before(mid))
}
