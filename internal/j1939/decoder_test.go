package j1939

import (
	"testing"

	"github.com/fleetpulse/telemetry-core/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_DtcStream(t *testing.T) {
	store := SeedStore()

	faults := Decode(store, "100.1,157.3,0,1")

	require.Len(t, faults, 2)

	detailed := faults[0]
	assert.Equal(t, 100, detailed.SPN)
	assert.Equal(t, 1, detailed.FMI)
	assert.True(t, detailed.HasDetailedInfo)
	assert.Equal(t, types.SeverityCritical, detailed.Severity)
	assert.Equal(t, "All OEMs", detailed.OEM)
	assert.NotEmpty(t, detailed.SPNExplanationEs)

	complete := faults[1]
	assert.Equal(t, 157, complete.SPN)
	assert.Equal(t, 3, complete.FMI)
	assert.False(t, complete.HasDetailedInfo)
	assert.Equal(t, types.SeverityHigh, complete.Severity)
}

func TestDecode_NoFaultSentinelsRejected(t *testing.T) {
	store := SeedStore()
	faults := Decode(store, "0,1,0.0,1.0")
	assert.Empty(t, faults)
}

func TestDecode_BareSpnUsesUnknownFMI(t *testing.T) {
	store := NewEmptyStore()
	faults := Decode(store, "500")
	require.Len(t, faults, 1)
	assert.Equal(t, 500, faults[0].SPN)
	assert.Equal(t, fmiUnknown, faults[0].FMI)
}

func TestDecode_DuplicatesCollapsed(t *testing.T) {
	store := NewEmptyStore()
	faults := Decode(store, "500.3,500.3,500.3")
	assert.Len(t, faults, 1)
}

func TestDecode_NonIntegerTokenSkippedSilently(t *testing.T) {
	store := NewEmptyStore()
	faults := Decode(store, "abc.def,500.3")
	require.Len(t, faults, 1)
	assert.Equal(t, 500, faults[0].SPN)
}

func TestDecode_UnknownSpnSynthesizesInfoSeverity(t *testing.T) {
	store := NewEmptyStore()
	faults := Decode(store, "999999.31")
	require.Len(t, faults, 1)
	assert.Equal(t, types.SeverityInfo, faults[0].Severity)
	assert.False(t, faults[0].HasDetailedInfo)
}

func TestSeverityFromFMI_Buckets(t *testing.T) {
	assert.Equal(t, types.SeverityCritical, severityFromFMI(0))
	assert.Equal(t, types.SeverityCritical, severityFromFMI(14))
	assert.Equal(t, types.SeverityHigh, severityFromFMI(4))
	assert.Equal(t, types.SeverityModerate, severityFromFMI(9))
	assert.Equal(t, types.SeverityLow, severityFromFMI(17))
	assert.Equal(t, types.SeverityInfo, severityFromFMI(31))
}

func TestDecode_EmptyString(t *testing.T) {
	store := SeedStore()
	assert.Empty(t, Decode(store, ""))
	assert.Empty(t, Decode(store, "   "))
}
