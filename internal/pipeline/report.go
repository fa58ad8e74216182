package pipeline

import (
	"fmt"
	"io"
	"text/tabwriter"

	"arrivals_etl/internal/flights"
)

func printFlights(w io.Writer, rows []flights.FlightRow) {
	fmt.Fprintln(w, "Success! Here's the flight data:")
	for _, r := range rows {
		fmt.Fprintf(w, "Flight %s from %s: Scheduled Arrival: %s\n", r.FlightNumber, r.DepartureAirport, r.ArrivalTime)
	}
}

// printCounts writes counts as an aligned two-column table under an
// optional heading.
func printCounts(w io.Writer, heading string, counts []flights.DepartureCount) {
	if heading != "" {
		fmt.Fprintln(w, heading)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "departure_airport\tflight_count")
	for _, c := range counts {
		fmt.Fprintf(tw, "%s\t%d\n", c.DepartureAirport, c.FlightCount)
	}
	_ = tw.Flush()
}

// PrintCounts is printCounts for callers outside a run, such as the stats
// command.
func PrintCounts(w io.Writer, heading string, counts []flights.DepartureCount) {
	printCounts(w, heading, counts)
}
