package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"assistant-proxy-be/internal/pkg/logger"
	"assistant-proxy-be/pkg/assistantclient"
	"assistant-proxy-be/pkg/conversation"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant through a running proxy",
		Long: "Opens one widget instance against the assistant proxy. Type a message and press enter.\n" +
			"Commands: /service <tag> selects a service, /services lists the selection, /quit leaves.",
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")
			session, _ := cmd.Flags().GetString("session")
			services, _ := cmd.Flags().GetStringSlice("service")
			logPath, _ := cmd.Flags().GetString("log-file")
			noColor, _ := cmd.Flags().GetBool("no-color")
			if noColor {
				color.NoColor = true
			}
			return run(cmd.Context(), server, session, services, logPath)
		},
	}
	rootCmd.Flags().StringP("server", "s", "http://localhost:3000", "Base URL of the assistant proxy")
	rootCmd.Flags().String("session", uuid.New().String(), "Browser session key; reuse it to resume a conversation")
	rootCmd.Flags().StringSlice("service", nil, "Service tag to preselect (repeatable)")
	rootCmd.Flags().String("log-file", "logs/chat.log", "Where diagnostics are written")
	rootCmd.Flags().Bool("no-color", false, "Disable colored output")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, server, session string, services []string, logPath string) error {
	log := logger.NewIsolatedLogger(logPath)
	defer log.Sync()

	client := assistantclient.New(server, session)

	// the consumer outlives ctx so the save requested by machine.Close on Ctrl-C still goes out
	dispatcher := conversation.NewTranscriptDispatcher(client, log)
	if err := dispatcher.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	out := newPrinter(os.Stdout)
	machine := conversation.NewMachine(client, client,
		conversation.WithTranscriptSaver(dispatcher),
		conversation.WithLogger(log),
		conversation.WithObserver(out.Observe),
	)
	machine.SetSelectedServices(services)

	if _, ok := client.GetOrCreateID(ctx); !ok {
		color.Yellow("proxy at %s is not reachable yet, messages will be ignored until it is", server)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	defer func() {
		machine.Close()
		_ = dispatcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, machine, out, line); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, machine *conversation.Machine, out *printer, line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "/quit":
		return true
	case trimmed == "/services":
		out.printServices(machine.Snapshot().SelectedServices)
	case strings.HasPrefix(trimmed, "/service "):
		machine.SelectService(strings.TrimPrefix(trimmed, "/service "))
		out.printServices(machine.Snapshot().SelectedServices)
	default:
		err := machine.Send(ctx, line)
		switch {
		case err == nil, errors.Is(err, conversation.ErrTurnFailed):
			// failures are already rendered as an apology entry
		case errors.Is(err, conversation.ErrEmptyMessage):
		case errors.Is(err, conversation.ErrNotReady):
			color.Yellow("no session yet, is the proxy running?")
		default:
			color.Red("%v", err)
		}
	}
	return false
}
