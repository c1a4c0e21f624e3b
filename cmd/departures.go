package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/findbus"
	"tidbyt.dev/findbus/model"
)

var departuresCmd = &cobra.Command{
	Use:   "departures <stop>",
	Short: "Lists upcoming departures from a stop",
	Args:  cobra.ExactArgs(1),
	RunE:  departures,
}

var (
	window  time.Duration
	limit   int
	routeID string
	at      string
)

func init() {
	departuresCmd.Flags().DurationVarP(&window, "window", "W", 15*time.Minute, "Time window to search for departures")
	departuresCmd.Flags().IntVarP(&limit, "limit", "l", -1, "Limit the number of departures returned")
	departuresCmd.Flags().StringVarP(&routeID, "route", "r", "", "Restrict to a specific route")
	departuresCmd.Flags().StringVarP(&at, "at", "", "", "Time of day as HH:MM:SS (default now)")
	rootCmd.AddCommand(departuresCmd)
}

func departures(cmd *cobra.Command, args []string) error {
	index, err := loadIndex(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	engine := newEngine(index)

	stopID, err := resolveStop(engine, args[0])
	if err != nil {
		return err
	}

	from := findbus.TimeOfDay(time.Now())
	if at != "" {
		from, err = model.ParseTimeStrict(at)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}
	to := from + int(window.Seconds())

	matches, err := engine.Search(findbus.Query{SourceStopID: stopID, SourceRouteID: routeID})
	if err != nil {
		return err
	}

	n := 0
	for _, m := range matches {
		if m.Departure < from || m.Departure > to {
			continue
		}
		if limit >= 0 && n >= limit {
			break
		}
		n++

		trip, _ := index.Trip(m.TripID)
		label := m.RouteID
		if route, found := index.Route(m.RouteID); found {
			label = route.Label()
		}
		fmt.Printf("%s %s %s %s\n", model.FormatTime(m.Departure), label, trip.Headsign, m.TripID)
	}

	return nil
}
