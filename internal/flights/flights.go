// Package flights holds the flight-arrival data model and the pure
// transformations applied to it: projecting API records into rows and
// counting rows per departure airport.
package flights

import (
	"fmt"
	"sort"
	"strings"
)

// FlightRecord is one result item as returned by the aviation data API.
// Pointer fields distinguish a missing or null key from an empty value.
type FlightRecord struct {
	FlightDate   string       `json:"flight_date,omitempty"`
	FlightStatus string       `json:"flight_status,omitempty"`
	Flight       *FlightIdent `json:"flight"`
	Departure    *Endpoint    `json:"departure"`
	Arrival      *Endpoint    `json:"arrival"`
	Airline      *Airline     `json:"airline,omitempty"`
}

// FlightIdent identifies the flight itself.
type FlightIdent struct {
	Number *string `json:"number,omitempty"`
	IATA   *string `json:"iata"`
	ICAO   *string `json:"icao,omitempty"`
}

// Endpoint is either end of a flight.
type Endpoint struct {
	Airport   *string `json:"airport,omitempty"`
	IATA      *string `json:"iata"`
	ICAO      *string `json:"icao,omitempty"`
	Scheduled *string `json:"scheduled"`
}

// Airline is the operating carrier.
type Airline struct {
	Name *string `json:"name,omitempty"`
	IATA *string `json:"iata,omitempty"`
}

// FlightRow is the flattened, persistence-ready projection of a FlightRecord.
type FlightRow struct {
	FlightNumber     string `json:"flight_number"`
	DepartureAirport string `json:"departure_airport"`
	ArrivalTime      string `json:"arrival_time"`
}

// DepartureCount is the number of rows sharing one departure airport.
type DepartureCount struct {
	DepartureAirport string `json:"departure_airport"`
	FlightCount      int    `json:"flight_count"`
}

// Field paths checked by Shape.
const (
	FieldFlightIATA       = "flight.iata"
	FieldDepartureIATA    = "departure.iata"
	FieldArrivalScheduled = "arrival.scheduled"
)

// ShapeError reports a record that lacks one of the nested fields a row
// is built from.
type ShapeError struct {
	Index int    // Position of the record in the API result.
	Field string // Dotted path of the missing field.
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("record %d: missing field %s", e.Index, e.Field)
}

// Policy decides what Shape does with a record it cannot project.
type Policy int

const (
	// Abort stops at the first bad record.
	Abort Policy = iota
	// Skip drops bad records and reports them.
	Skip
)

// ParsePolicy maps "abort" or "skip" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "abort", "":
		return Abort, nil
	case "skip":
		return Skip, nil
	}
	return Abort, fmt.Errorf("unknown bad-record policy %q (want abort or skip)", s)
}

func (p Policy) String() string {
	if p == Skip {
		return "skip"
	}
	return "abort"
}

// ToRow projects a single record. Missing, null and blank values are all
// treated as missing.
func (r FlightRecord) ToRow() (FlightRow, string, bool) {
	var fn, dep, arr string
	if r.Flight != nil {
		fn = value(r.Flight.IATA)
	}
	if fn == "" {
		return FlightRow{}, FieldFlightIATA, false
	}
	if r.Departure != nil {
		dep = value(r.Departure.IATA)
	}
	if dep == "" {
		return FlightRow{}, FieldDepartureIATA, false
	}
	if r.Arrival != nil {
		arr = value(r.Arrival.Scheduled)
	}
	if arr == "" {
		return FlightRow{}, FieldArrivalScheduled, false
	}
	return FlightRow{FlightNumber: fn, DepartureAirport: dep, ArrivalTime: arr}, "", true
}

// Shape projects records into rows one-to-one. Under Abort the first bad
// record is returned as a *ShapeError; under Skip bad records are left out
// of the rows and returned in skipped.
func Shape(records []FlightRecord, policy Policy) (rows []FlightRow, skipped []*ShapeError, err error) {
	rows = make([]FlightRow, 0, len(records))
	for i, rec := range records {
		row, field, ok := rec.ToRow()
		if !ok {
			serr := &ShapeError{Index: i, Field: field}
			if policy == Abort {
				return nil, nil, serr
			}
			skipped = append(skipped, serr)
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

// Aggregate counts rows per departure airport. The result is ordered by
// count descending, then airport ascending.
func Aggregate(rows []FlightRow) []DepartureCount {
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.DepartureAirport]++
	}
	return fromMap(counts)
}

// SortCounts orders counts in place the same way Aggregate does.
func SortCounts(counts []DepartureCount) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].FlightCount != counts[j].FlightCount {
			return counts[i].FlightCount > counts[j].FlightCount
		}
		return counts[i].DepartureAirport < counts[j].DepartureAirport
	})
}

// Total sums FlightCount over counts.
func Total(counts []DepartureCount) int {
	n := 0
	for _, c := range counts {
		n += c.FlightCount
	}
	return n
}

// SameCounts reports whether a and b hold the same (airport, count) pairs,
// ignoring order.
func SameCounts(a, b []DepartureCount) bool {
	if len(a) != len(b) {
		return false
	}
	m := make(map[string]int, len(a))
	for _, c := range a {
		m[c.DepartureAirport] += c.FlightCount
	}
	for _, c := range b {
		got, ok := m[c.DepartureAirport]
		if !ok || got != c.FlightCount {
			return false
		}
		delete(m, c.DepartureAirport)
	}
	return len(m) == 0
}

func fromMap(m map[string]int) []DepartureCount {
	out := make([]DepartureCount, 0, len(m))
	for airport, n := range m {
		out = append(out, DepartureCount{DepartureAirport: airport, FlightCount: n})
	}
	SortCounts(out)
	return out
}

func value(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
