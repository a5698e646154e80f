// Package commands implements the babelctl CLI commands.
package commands

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// socketPath is the babeld management socket babelctl dials.
	socketPath string

	// dialTimeout bounds how long a request command waits to connect.
	dialTimeout = 2 * time.Second
)

// rootCmd is the top-level cobra command for babelctl.
var rootCmd = &cobra.Command{
	Use:   "babelctl",
	Short: "CLI client for the babeld daemon",
	Long:  "babelctl communicates with the babeld daemon over its Unix domain management socket.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/var/run/babeld/control.sock",
		"babeld management socket path")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(neighboursCmd())
	rootCmd.AddCommand(routesCmd())
	rootCmd.AddCommand(xroutesCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// request dials the management socket, sends a single line request, and
// returns the single-line JSON response.
func request(req string) (string, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", socketPath, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(req + "\n")); err != nil {
		return "", fmt.Errorf("write request: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		return "", fmt.Errorf("no response to %q", req)
	}
	return scanner.Text(), nil
}
