package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tidbyt.dev/findbus"
	"tidbyt.dev/findbus/model"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Finds trips from a stop or route to another",
	Args:  cobra.NoArgs,
	RunE:  search,
}

var (
	fromStop    string
	toStop      string
	fromRoute   string
	toRoute     string
	searchLimit int
)

func init() {
	searchCmd.Flags().StringVarP(&fromStop, "from", "f", "", "Source stop (ID or name)")
	searchCmd.Flags().StringVarP(&toStop, "to", "t", "", "Destination stop (ID or name)")
	searchCmd.Flags().StringVarP(&fromRoute, "from-route", "", "", "Source route ID")
	searchCmd.Flags().StringVarP(&toRoute, "to-route", "", "", "Destination route ID")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 12, "Limit the number of trips listed (0 for all)")
	rootCmd.AddCommand(searchCmd)
}

// Resolves a stop given on the command line.
func resolveStop(engine *findbus.TripSearchEngine, s string) (string, error) {
	if s == "" {
		return "", nil
	}
	id, found := engine.ResolveStop(s)
	if !found {
		return "", fmt.Errorf("no stop matching '%s'", s)
	}
	return id, nil
}

func search(cmd *cobra.Command, args []string) error {
	index, err := loadIndex(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	engine := newEngine(index)

	q := findbus.Query{SourceRouteID: fromRoute, DestRouteID: toRoute}
	q.SourceStopID, err = resolveStop(engine, fromStop)
	if err != nil {
		return err
	}
	q.DestStopID, err = resolveStop(engine, toStop)
	if err != nil {
		return err
	}

	matches, err := engine.Search(q)
	if err != nil {
		return err
	}

	printMatches(index, matches, searchLimit)
	return nil
}

func printMatches(index *findbus.TransitIndex, matches []model.Match, limit int) {
	if len(matches) == 0 {
		fmt.Println("No scheduled trips found.")
		return
	}

	fmt.Printf("%d matching trips:\n", len(matches))
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	for _, m := range matches {
		label := m.RouteID
		if route, found := index.Route(m.RouteID); found {
			label = route.Label()
		}
		sts := index.StopTimes(m.TripID)
		if len(sts) == 0 {
			fmt.Printf("%s Route %s (no stop times)\n", m.TripID, label)
			continue
		}
		to := sts[len(sts)-1]
		if m.AlightIndex >= 0 {
			to = sts[m.AlightIndex]
		}
		fmt.Printf(
			"%s Route %s dep %s arr %s %s\n",
			m.TripID,
			label,
			model.FormatHHMM(m.Departure),
			model.FormatHHMM(to.ArrivalOrDeparture()),
			index.StopName(to.StopID),
		)
	}
}
