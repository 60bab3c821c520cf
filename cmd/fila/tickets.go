package main

import (
	"context"
	"fmt"
	"time"

	fila "github.com/filaone/fila-go"
	"github.com/spf13/cobra"
)

var (
	ticketClientName  string
	ticketClientPhone string
	ticketPriority    int
)

func init() {
	rootCmd.AddCommand(ticketsCmd)
	ticketsCmd.AddCommand(ticketsAddCmd)
	ticketsCmd.AddCommand(ticketsGetCmd)
	ticketsCmd.AddCommand(ticketsRecallCmd)
	ticketsCmd.AddCommand(ticketsSkipCmd)
	ticketsCmd.AddCommand(ticketsCompleteCmd)

	ticketsAddCmd.Flags().StringVar(&ticketClientName, "name", "", "client name")
	ticketsAddCmd.Flags().StringVar(&ticketClientPhone, "phone", "", "client phone")
	ticketsAddCmd.Flags().IntVar(&ticketPriority, "priority", 0, "ticket priority")
}

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "Manage tickets",
}

var ticketsAddCmd = &cobra.Command{
	Use:   "add <queue-id>",
	Short: "Issue a new ticket in a queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		ticket, err := client.Tickets().Create(ctx, args[0], &fila.CreateTicketOptions{
			ClientName:  ticketClientName,
			ClientPhone: ticketClientPhone,
			Priority:    ticketPriority,
		})
		if err != nil {
			return fmt.Errorf("failed to create ticket: %w", err)
		}

		fmt.Printf("Ticket %s issued: %s (position %d)\n",
			ticket.ID, ticket.MyCallingToken, ticket.Position)
		return nil
	},
}

var ticketsGetCmd = &cobra.Command{
	Use:   "get <ticket-id>",
	Short: "Show one ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		ticket, err := client.Tickets().Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to fetch ticket: %w", err)
		}

		fmt.Printf("Ticket:   %s\n", ticket.ID)
		fmt.Printf("  Token:    %s\n", ticket.MyCallingToken)
		fmt.Printf("  Status:   %s\n", ticket.Status)
		fmt.Printf("  Queue:    %s\n", ticket.QueueID)
		if ticket.Position != 0 {
			fmt.Printf("  Position: %d\n", ticket.Position)
		}
		if ticket.ClientName != "" {
			fmt.Printf("  Client:   %s\n", ticket.ClientName)
		}
		return nil
	},
}

func ticketAction(name string, action func(*fila.TicketsClient, context.Context, string) (*fila.Ticket, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		ticket, err := action(client.Tickets(), ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to %s ticket: %w", name, err)
		}

		fmt.Printf("Ticket %s is now %s\n", ticket.MyCallingToken, ticket.Status)
		return nil
	}
}

var ticketsRecallCmd = &cobra.Command{
	Use:   "recall <ticket-id>",
	Short: "Re-announce a called ticket",
	Args:  cobra.ExactArgs(1),
	RunE: ticketAction("recall", func(tc *fila.TicketsClient, ctx context.Context, id string) (*fila.Ticket, error) {
		return tc.Recall(ctx, id)
	}),
}

var ticketsSkipCmd = &cobra.Command{
	Use:   "skip <ticket-id>",
	Short: "Skip a called ticket that did not show up",
	Args:  cobra.ExactArgs(1),
	RunE: ticketAction("skip", func(tc *fila.TicketsClient, ctx context.Context, id string) (*fila.Ticket, error) {
		return tc.Skip(ctx, id)
	}),
}

var ticketsCompleteCmd = &cobra.Command{
	Use:   "complete <ticket-id>",
	Short: "Complete service for a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: ticketAction("complete", func(tc *fila.TicketsClient, ctx context.Context, id string) (*fila.Ticket, error) {
		return tc.Complete(ctx, id)
	}),
}
