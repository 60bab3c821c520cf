package main

import (
	"context"
	"fmt"
	"time"

	fila "github.com/filaone/fila-go"
	"github.com/spf13/cobra"
)

var (
	queueDescription string
	queueType        string
	queueService     string
	queueTolerance   int
	queueCapacity    int
)

func init() {
	rootCmd.AddCommand(queuesCmd)
	queuesCmd.AddCommand(queuesListCmd)
	queuesCmd.AddCommand(queuesCreateCmd)
	queuesCmd.AddCommand(queuesDeleteCmd)
	queuesCmd.AddCommand(queuesCallNextCmd)
	queuesCmd.AddCommand(queuesStatsCmd)

	queuesCreateCmd.Flags().StringVar(&queueDescription, "description", "", "queue description")
	queuesCreateCmd.Flags().StringVar(&queueType, "type", "general", "queue type")
	queuesCreateCmd.Flags().StringVar(&queueService, "service", "standard", "service type")
	queuesCreateCmd.Flags().IntVar(&queueTolerance, "tolerance", 0, "tolerance in minutes before a called ticket is abandoned")
	queuesCreateCmd.Flags().IntVar(&queueCapacity, "capacity", 0, "maximum queue capacity (0 = unlimited)")
}

var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "Manage queues",
}

var queuesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tenant's queues",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()
		tenantID := requireTenant(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		queues, err := client.Queues(tenantID).List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list queues: %w", err)
		}

		if len(queues) == 0 {
			fmt.Println("No queues.")
			return nil
		}
		for _, q := range queues {
			state := "inactive"
			if q.IsActive {
				state = "active"
			}
			fmt.Printf("%s  %-20s  %-8s  waiting=%d  current=%s\n",
				q.ID, q.Name, state, q.TotalWaiting, valueOrDefault(q.CurrentNumber, "-"))
		}
		return nil
	},
}

var queuesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()
		tenantID := requireTenant(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		queue, err := client.Queues(tenantID).Create(ctx, &fila.CreateQueueOptions{
			Name:             args[0],
			Description:      queueDescription,
			QueueType:        queueType,
			ServiceType:      queueService,
			ToleranceMinutes: queueTolerance,
			Capacity:         queueCapacity,
		})
		if err != nil {
			return fmt.Errorf("failed to create queue: %w", err)
		}

		fmt.Printf("Created queue %s (%s)\n", queue.Name, queue.ID)
		return nil
	},
}

var queuesDeleteCmd = &cobra.Command{
	Use:   "delete <queue-id>",
	Short: "Delete a queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()
		tenantID := requireTenant(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Queues(tenantID).Delete(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to delete queue: %w", err)
		}
		fmt.Printf("Deleted queue %s\n", args[0])
		return nil
	},
}

var queuesCallNextCmd = &cobra.Command{
	Use:   "call-next <queue-id>",
	Short: "Call the next waiting ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()
		tenantID := requireTenant(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		ticket, err := client.Queues(tenantID).CallNext(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to call next ticket: %w", err)
		}

		fmt.Printf("Called %s (ticket %s)\n", ticket.MyCallingToken, ticket.ID)
		return nil
	},
}

var queuesStatsCmd = &cobra.Command{
	Use:   "stats <queue-id>",
	Short: "Show queue statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()
		tenantID := requireTenant(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		stats, err := client.Queues(tenantID).Stats(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to fetch stats: %w", err)
		}

		fmt.Printf("Queue: %s (%s)\n", stats.QueueInfo.Name, stats.QueueInfo.Status)
		fmt.Printf("  Waiting:          %d\n", stats.CurrentStats.WaitingCount)
		fmt.Printf("  Called:           %d\n", stats.CurrentStats.CalledCount)
		fmt.Printf("  Completed today:  %d\n", stats.CurrentStats.CompletedToday)
		fmt.Printf("  Next estimate:    %d min\n", stats.CurrentStats.NextEstimatedTimeMinutes)
		fmt.Printf("  Avg wait:         %d min\n", stats.Performance.AvgWaitTimeMinutes)
		fmt.Printf("  Completion rate:  %.1f%%\n", stats.CurrentStats.CompletionRate)
		fmt.Printf("  Abandonment rate: %.1f%%\n", stats.Performance.AbandonmentRate)
		return nil
	},
}
