package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLap struct {
	DriverNumber int     `json:"driver_number"`
	LapNumber    int     `json:"lap_number"`
	LapDuration  float64 `json:"lap_duration"`
}

func collectLaps(ctx context.Context, t *testing.T, input string) ([]testLap, error) {
	t.Helper()
	var laps []testLap
	err := StreamJSONArray(ctx, strings.NewReader(input), func(l testLap) error {
		laps = append(laps, l)
		return nil
	})
	return laps, err
}

func TestStreamJSONArray(t *testing.T) {
	input := `[{"driver_number":1,"lap_number":1,"lap_duration":92.5},{"driver_number":1,"lap_number":2,"lap_duration":91.2},{"driver_number":44,"lap_number":1,"lap_duration":93.0}]`

	laps, err := collectLaps(context.Background(), t, input)
	require.NoError(t, err)
	require.Len(t, laps, 3)
	assert.Equal(t, 2, laps[1].LapNumber)
	assert.InDelta(t, 91.2, laps[1].LapDuration, 1e-9)
	assert.Equal(t, 44, laps[2].DriverNumber)
}

func TestStreamJSONArray_Empty(t *testing.T) {
	for _, input := range []string{`[]`, ``} {
		laps, err := collectLaps(context.Background(), t, input)
		require.NoError(t, err, input)
		assert.Empty(t, laps, input)
	}
}

func TestStreamJSONArray_Errors(t *testing.T) {
	_, err := collectLaps(context.Background(), t, `{"detail":"not found"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '['")

	_, err = collectLaps(context.Background(), t, `[{"lap_number":1},{"lap_number":"x"}]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode element 1")

	_, err = collectLaps(context.Background(), t, `[{"lap_number":1}`)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = collectLaps(ctx, t, `[{"lap_number":1}]`)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStreamJSONArray_CallbackError(t *testing.T) {
	stop := errors.New("stop")
	var seen int
	err := StreamJSONArray(context.Background(), strings.NewReader(`[{},{},{}]`), func(testLap) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 2, seen)
}

func TestDecodeJSONObject(t *testing.T) {
	rec, err := DecodeJSONObject[testLap](strings.NewReader(`{"driver_number":16,"lap_number":7,"lap_duration":80.1}`))
	require.NoError(t, err)
	assert.Equal(t, 16, rec.DriverNumber)
	assert.Equal(t, 7, rec.LapNumber)
}

func TestDecodeJSONObject_Invalid(t *testing.T) {
	_, err := DecodeJSONObject[testLap](strings.NewReader(`not json`))
	require.Error(t, err)
}

func TestFetchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"driver_number":4,"lap_number":12,"lap_duration":88.25}`))
	}))
	defer srv.Close()

	lap, err := FetchJSON[testLap](context.Background(), newTestFetcher(t), srv.URL+"/laps/1")
	require.NoError(t, err)
	assert.Equal(t, 4, lap.DriverNumber)
	assert.InDelta(t, 88.25, lap.LapDuration, 1e-9)
}

func TestFetchJSON_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := FetchJSON[testLap](context.Background(), newTestFetcher(t), srv.URL)
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestFetchJSONArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"driver_number":4,"lap_number":12},{"driver_number":81,"lap_number":12}]`))
	}))
	defer srv.Close()

	laps, err := FetchJSONArray[testLap](context.Background(), newTestFetcher(t), srv.URL+"/laps")
	require.NoError(t, err)
	require.Len(t, laps, 2)
	assert.Equal(t, 81, laps[1].DriverNumber)
}

func TestFetchJSONArray_NotAnArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"detail":"No results found."}`))
	}))
	defer srv.Close()

	_, err := FetchJSONArray[testLap](context.Background(), newTestFetcher(t), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '['")
}
