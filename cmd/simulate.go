package main

import (
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tidbyt.dev/findbus"
	"tidbyt.dev/findbus/model"
	"tidbyt.dev/findbus/publisher"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <trip_id>",
	Short: "Replays a trip on a sped up clock",
	Args:  cobra.ExactArgs(1),
	RunE:  simulate,
}

var (
	interval time.Duration
	speed    float64
)

func init() {
	simulateCmd.Flags().DurationVarP(&interval, "interval", "i", 0, "Tick interval (default from config, 700ms)")
	simulateCmd.Flags().Float64VarP(&speed, "speed", "s", 0, "Speed multiplier (default from config, 8)")
	rootCmd.AddCommand(simulateCmd)
}

func simulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	index, err := loadIndex(ctx, cmd)
	if err != nil {
		return err
	}

	clock := findbus.NewSimulationClock(index)
	clock.Interval = cfg.TickInterval
	clock.Speed = cfg.SpeedMultiplier
	if interval > 0 {
		clock.Interval = interval
	}
	if speed > 0 {
		clock.Speed = speed
	}
	clock.Metrics = collector

	clock.AddSink(findbus.TickSinkFunc(func(r model.TickResult) {
		log.Info().
			Str("sim_time", model.FormatTime(int(r.SimulatedSecs))).
			Int("segment", r.SegmentIndex).
			Float64("fraction", r.Fraction).
			Str("prev", r.PreviousStopName).
			Str("next", r.NextStopName).
			Str("eta", etaText(r.ETASecondsToNext)).
			Msg("Tick")
	}))

	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.LogNATSSubjects, collector)
		if err != nil {
			return err
		}
		defer pub.Close()
		clock.AddSink(pub)
	}

	err = clock.Start(ctx, args[0])
	if err != nil {
		return err
	}

	select {
	case <-clock.Done():
	case <-ctx.Done():
		clock.Stop()
		log.Info().Msg("Simulation stopped")
	}

	return nil
}

func etaText(secs float64) string {
	if secs <= 0 {
		return "Arriving"
	}
	d := time.Duration(secs) * time.Second
	return d.Round(time.Second).String()
}
