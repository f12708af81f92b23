package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"cloudtrail-notifier/pkg/metrics"
	"cloudtrail-notifier/pkg/shared"
)

func newStatsCommand() *cobra.Command {
	var (
		redisAddr string
		instance  string
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show counters reported by running notifiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			client, err := shared.ConnectRedis(ctx, redisAddr)
			if err != nil {
				return err
			}
			defer client.Close()

			reader := metrics.NewReader(client)
			out := cmd.OutOrStdout()
			if instance != "" {
				m, err := reader.GetInstanceMetrics(ctx, instance)
				if err != nil {
					return err
				}
				printInstance(out, m)
				return nil
			}

			all, err := reader.GetAllInstanceMetrics(ctx)
			if err != nil {
				return err
			}
			if len(all) == 0 {
				yellow.Fprintln(out, "no notifier has reported metrics")
				return nil
			}
			names := make([]string, 0, len(all))
			for name := range all {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				printInstance(out, all[name])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&redisAddr, "redis-addr", shared.GetEnvOrDefault("METRICS_REDIS_ADDR", "localhost:6379"), "Redis address the notifiers report to")
	cmd.Flags().StringVar(&instance, "instance", "", "Only show this instance")
	return cmd
}

func printInstance(out io.Writer, m *metrics.InstanceMetrics) {
	status := green
	if m.Status != "healthy" {
		status = yellow
	}
	fmt.Fprintf(out, "%s  ", m.Instance)
	status.Fprintf(out, "%s\n", m.Status)
	fmt.Fprintf(out, "  received=%d processed=%d notified=%d errors=%d avg_latency=%s\n",
		m.EventsReceived, m.EventsProcessed, m.NotificationsSent, m.ProcessingErrors,
		time.Duration(m.AvgProcessingLatencyNs))

	keys := make([]string, 0, len(m.CustomCounters))
	for k := range m.CustomCounters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %s=%d\n", k, m.CustomCounters[k])
	}
}
