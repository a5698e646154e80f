package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/babeldcore/babeld/internal/server"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream ADD/CHANGE/FLUSH events from the daemon",
		Long:  "Connects to the babeld management socket and streams table events until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			conn, err := net.Dial("unix", socketPath)
			if err != nil {
				return fmt.Errorf("dial %s: %w", socketPath, err)
			}
			defer conn.Close()

			go func() {
				<-ctx.Done()
				conn.Close()
			}()

			if _, err := conn.Write([]byte("WATCH\n")); err != nil {
				return fmt.Errorf("write WATCH: %w", err)
			}

			scanner := bufio.NewScanner(conn)
			for scanner.Scan() {
				var evt server.NotificationEventDTO
				if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
					return fmt.Errorf("unmarshal event: %w", err)
				}

				out, err := formatEvent(evt, outputFormat)
				if err != nil {
					return fmt.Errorf("format event: %w", err)
				}
				fmt.Println(out)
			}

			if err := scanner.Err(); err != nil {
				if errors.Is(ctx.Err(), context.Canceled) {
					return nil
				}
				return fmt.Errorf("stream error: %w", err)
			}

			return nil
		},
	}
}
