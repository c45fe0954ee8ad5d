package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"assistant-proxy-be/pkg/events"
	pktNats "assistant-proxy-be/pkg/nats"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "events",
		Short: "Tail assistant domain events from NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("nats")
			subject, _ := cmd.Flags().GetString("subject")
			durable, _ := cmd.Flags().GetString("durable")
			return tail(cmd.Context(), url, subject, durable)
		},
	}

	_ = godotenv.Load()
	defaultURL := os.Getenv("NATS_URL")
	if defaultURL == "" {
		defaultURL = "nats://localhost:4222"
	}

	rootCmd.Flags().String("nats", defaultURL, "NATS server URL")
	rootCmd.Flags().String("subject", pktNats.SubjectPrefix+".>", "Subject filter, e.g. assistant.turn_rejected")
	rootCmd.Flags().String("durable", "", "Durable consumer name; empty tails new events only")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func tail(ctx context.Context, url, subject, durable string) error {
	sub, err := pktNats.NewSubscriber(url)
	if err != nil {
		return err
	}
	defer sub.Close()

	err = sub.Subscribe(ctx, subject, durable, func(_ context.Context, event events.Event) error {
		printEvent(event)
		return nil
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func printEvent(event events.Event) {
	paint := color.New(color.FgGreen)
	switch event.EventType() {
	case events.TypeTurnRejected, events.TypeTranscriptFailed:
		paint = color.New(color.FgRed)
	case events.TypeDocumentReferenced:
		paint = color.New(color.FgCyan)
	}

	payload := event.Payload()
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	line := fmt.Sprintf("%s %-22s", event.Timestamp().Format("15:04:05"), event.EventType())
	for _, k := range keys {
		line += fmt.Sprintf(" %s=%v", k, payload[k])
	}
	paint.Println(line)
}
