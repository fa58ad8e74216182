package flights

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoFromLHR = `[
	{"flight":{"iata":"EI100"},"departure":{"iata":"LHR"},"arrival":{"scheduled":"2024-01-01T10:00:00"}},
	{"flight":{"iata":"BA101"},"departure":{"iata":"LHR"},"arrival":{"scheduled":"2024-01-01T11:00:00"}}
]`

func decodeRecords(t *testing.T, s string) []FlightRecord {
	t.Helper()
	var recs []FlightRecord
	require.NoError(t, json.Unmarshal([]byte(s), &recs))
	return recs
}

func TestShapeExample(t *testing.T) {
	recs := decodeRecords(t, twoFromLHR)

	rows, skipped, err := Shape(recs, Abort)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, []FlightRow{
		{FlightNumber: "EI100", DepartureAirport: "LHR", ArrivalTime: "2024-01-01T10:00:00"},
		{FlightNumber: "BA101", DepartureAirport: "LHR", ArrivalTime: "2024-01-01T11:00:00"},
	}, rows)

	counts := Aggregate(rows)
	assert.Equal(t, []DepartureCount{{DepartureAirport: "LHR", FlightCount: 2}}, counts)
}

func TestShapeMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{
			name:  "no flight object",
			input: `[{"departure":{"iata":"LHR"},"arrival":{"scheduled":"x"}}]`,
			field: FieldFlightIATA,
		},
		{
			name:  "null flight iata",
			input: `[{"flight":{"iata":null},"departure":{"iata":"LHR"},"arrival":{"scheduled":"x"}}]`,
			field: FieldFlightIATA,
		},
		{
			name:  "blank departure iata",
			input: `[{"flight":{"iata":"EI1"},"departure":{"iata":"  "},"arrival":{"scheduled":"x"}}]`,
			field: FieldDepartureIATA,
		},
		{
			name:  "departure null",
			input: `[{"flight":{"iata":"EI1"},"departure":null,"arrival":{"scheduled":"x"}}]`,
			field: FieldDepartureIATA,
		},
		{
			name:  "no scheduled arrival",
			input: `[{"flight":{"iata":"EI1"},"departure":{"iata":"LHR"},"arrival":{}}]`,
			field: FieldArrivalScheduled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := decodeRecords(t, tt.input)

			_, _, err := Shape(recs, Abort)
			var serr *ShapeError
			require.True(t, errors.As(err, &serr), "expected ShapeError, got %v", err)
			assert.Equal(t, 0, serr.Index)
			assert.Equal(t, tt.field, serr.Field)
		})
	}
}

func TestShapeSkipPolicy(t *testing.T) {
	recs := decodeRecords(t, `[
		{"flight":{"iata":"EI100"},"departure":{"iata":"LHR"},"arrival":{"scheduled":"a"}},
		{"flight":{"iata":"EI101"},"departure":{},"arrival":{"scheduled":"b"}},
		{"flight":{"iata":"EI102"},"departure":{"iata":"CDG"},"arrival":{"scheduled":"c"}}
	]`)

	rows, skipped, err := Shape(recs, Skip)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Len(t, skipped, 1)
	assert.Equal(t, 1, skipped[0].Index)
	assert.Equal(t, FieldDepartureIATA, skipped[0].Field)
	assert.Equal(t, len(recs), len(rows)+len(skipped))
}

func TestAggregateTotals(t *testing.T) {
	rows := []FlightRow{
		{FlightNumber: "A1", DepartureAirport: "LHR"},
		{FlightNumber: "A2", DepartureAirport: "CDG"},
		{FlightNumber: "A3", DepartureAirport: "LHR"},
		{FlightNumber: "A4", DepartureAirport: "AMS"},
		{FlightNumber: "A5", DepartureAirport: "CDG"},
		{FlightNumber: "A6", DepartureAirport: "LHR"},
	}

	counts := Aggregate(rows)
	assert.Equal(t, len(rows), Total(counts))
	assert.Equal(t, []DepartureCount{
		{DepartureAirport: "LHR", FlightCount: 3},
		{DepartureAirport: "CDG", FlightCount: 2},
		{DepartureAirport: "AMS", FlightCount: 1},
	}, counts)

	assert.Empty(t, Aggregate(nil))
	assert.Zero(t, Total(nil))
}

func TestSameCounts(t *testing.T) {
	a := []DepartureCount{{"LHR", 2}, {"CDG", 1}}
	b := []DepartureCount{{"CDG", 1}, {"LHR", 2}}
	c := []DepartureCount{{"CDG", 1}, {"LHR", 3}}
	d := []DepartureCount{{"CDG", 1}}

	assert.True(t, SameCounts(a, b))
	assert.False(t, SameCounts(a, c))
	assert.False(t, SameCounts(a, d))
	assert.True(t, SameCounts(nil, []DepartureCount{}))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("SKIP")
	require.NoError(t, err)
	assert.Equal(t, Skip, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Abort, p)

	_, err = ParsePolicy("ignore")
	assert.Error(t, err)
}
