package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var stopsCmd = &cobra.Command{
	Use:   "stops [query]",
	Short: "Lists stops, or suggests stops and routes matching a query",
	Args:  cobra.MaximumNArgs(1),
	RunE:  stops,
}

var (
	nearLocation string
	stopsLimit   int
)

func init() {
	stopsCmd.Flags().StringVarP(&nearLocation, "near", "", "", "Order stops by distance from <lat>,<lng>")
	stopsCmd.Flags().IntVarP(&stopsLimit, "limit", "l", 0, "Limit the number of stops listed")
	rootCmd.AddCommand(stopsCmd)
}

func stops(cmd *cobra.Command, args []string) error {
	if stopsLimit < 0 {
		return fmt.Errorf("limit must be >= 0")
	}

	index, err := loadIndex(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		suggestions := newEngine(index).Suggest(args[0])
		for _, r := range suggestions.Routes {
			meta := "route"
			if r.ExampleStopID != "" {
				meta = fmt.Sprintf("passes %s", index.StopName(r.ExampleStopID))
			}
			fmt.Printf("[route] %s (%s)\n", r.Route.Label(), meta)
		}
		for _, stop := range suggestions.Stops {
			fmt.Printf("[stop] %s: %s\n", stop.ID, stop.Name)
		}
		return nil
	}

	list := index.Stops()
	if nearLocation != "" {
		parts := strings.SplitN(nearLocation, ",", 2)
		if len(parts) != 2 {
			return fmt.Errorf("--near must be <lat>,<lng>")
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return fmt.Errorf("invalid lat: %w", err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return fmt.Errorf("invalid lng: %w", err)
		}
		list = index.NearbyStops(lat, lng, stopsLimit)
	} else if stopsLimit > 0 && len(list) > stopsLimit {
		list = list[:stopsLimit]
	}

	for _, stop := range list {
		fmt.Printf("%s: %s\n", stop.ID, stop.Name)
	}

	return nil
}
