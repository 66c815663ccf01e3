package wialon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollingSource_ParsesReadingsFromResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"readings":[
			{"unit_id":"T-1","timestamp":1735718400,"fuel_level_pct":62.5,"speed_mph":45.0,"rpm":1400,"battery_voltage":13.4,"dtc_string":""}
		]}`))
	}))
	defer srv.Close()

	src := NewPollingSource(srv.URL, 2*time.Second, nil)

	readings, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "T-1", readings[0].TruckID)
	assert.Equal(t, 45.0, readings[0].SpeedMPH)
	require.NotNil(t, readings[0].FuelLevelPct)
	assert.InDelta(t, 62.5, *readings[0].FuelLevelPct, 0.001)
}

func TestPollingSource_TripsOnRepeatedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewPollingSource(srv.URL, 2*time.Second, nil)

	for i := 0; i < 5; i++ {
		_, err := src.Poll(context.Background())
		assert.Error(t, err)
	}

	_, err := src.Poll(context.Background())
	require.Error(t, err)
}

func TestPollingSource_Name(t *testing.T) {
	src := NewPollingSource("http://example.invalid", time.Second, nil)
	assert.Equal(t, "wialon-polling", src.Name())
}
