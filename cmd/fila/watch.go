package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	fila "github.com/filaone/fila-go"
	"github.com/spf13/cobra"
)

var watchQueues []string

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringSliceVarP(&watchQueues, "queue", "q", nil, "queue id to watch (repeatable, up to 3)")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch real-time events until interrupted",
	Long:  "Connect to the event stream and print notifications as they arrive.\nThe session token is checked periodically and refreshed automatically.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		tm := client.TokenManager(&fila.TokenManagerConfig{
			Handler: terminalSessionHandler{cancel: cancel},
		})
		tm.Start(ctx)
		defer tm.Stop()

		rt := client.Realtime(nil)
		defer rt.Close()

		unsubscribe := rt.Notifications().Subscribe(fila.EventWildcard, func(ev *fila.Event) {
			fmt.Printf("[%s] %s %s\n",
				time.Now().Format("15:04:05"), ev.Kind(), fila.FormatMessage(ev))
		})
		defer unsubscribe()

		rt.ConnectMain(ctx)
		for _, queueID := range watchQueues {
			teardown := rt.ConnectQueue(ctx, queueID)
			defer teardown()
		}

		fmt.Println("Watching for events. Press Ctrl+C to stop.")
		<-ctx.Done()

		status := rt.ConnectionStatus()
		if status.ErrorMessage != "" {
			fmt.Printf("Last connection error: %s\n", status.ErrorMessage)
		}
		fmt.Printf("Stopped. %d unread notification(s).\n", rt.Notifications().UnreadCount())
		return nil
	},
}

// terminalSessionHandler renders session notices on stdout and stops the
// watch when the session is forced out.
type terminalSessionHandler struct {
	cancel context.CancelFunc
}

func (h terminalSessionHandler) OnWarning(n fila.Notice, refresh func()) {
	fmt.Printf("! %s: %s (auto-refresh armed)\n", n.Title, n.Description)
	refresh()
}

func (h terminalSessionHandler) OnSuccess(n fila.Notice) {
	fmt.Printf("  %s: %s\n", n.Title, n.Description)
}

func (h terminalSessionHandler) OnError(n fila.Notice) {
	fmt.Fprintf(os.Stderr, "! %s: %s\n", n.Title, n.Description)
}

func (h terminalSessionHandler) OnForcedLogout(reason string) {
	fmt.Fprintf(os.Stderr, "Session ended (%s). Run 'fila init <email>' to log in again.\n", reason)
	h.cancel()
}
