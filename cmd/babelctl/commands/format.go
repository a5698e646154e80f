package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/babeldcore/babeld/internal/server"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	valueNA     = "N/A"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

func formatNeighbours(neighbours []server.NeighbourDTO, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndent(neighbours)
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tINTERFACE\tRTT")
		for _, n := range neighbours {
			fmt.Fprintf(w, "%s\t%s\t%dms\n", n.Address, n.Interface, n.RTTMS)
		}
		return flush(w, &buf)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatRoutes(routes []server.RouteDTO, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndent(routes)
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PREFIX\tSRC\tTOS\tNEIGHBOUR\tMETRIC\tFEASIBLE\tINSTALLED")
		for _, r := range routes {
			src := r.SrcAddr
			if src == "" {
				src = valueNA
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%t\t%t\n",
				r.Prefix, src, r.TOS, r.Neighbour, r.Metric, r.Feasible, r.Installed)
		}
		return flush(w, &buf)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatXroutes(xroutes []server.XrouteDTO, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndent(xroutes)
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PREFIX\tTOS\tMETRIC\tIF-INDEX")
		for _, x := range xroutes {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", x.Prefix, x.TOS, x.Metric, x.IfIndex)
		}
		return flush(w, &buf)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatSources(sources []server.SourceDTO, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndent(sources)
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PREFIX\tTOS\tSEQNO\tMETRIC")
		for _, s := range sources {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", s.Prefix, s.TOS, s.Seqno, s.Metric)
		}
		return flush(w, &buf)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatEvent(evt server.NotificationEventDTO, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndent(evt)
	case formatTable:
		subject := valueNA
		switch evt.Table {
		case "neighbour":
			if evt.Neighbour != nil {
				subject = fmt.Sprintf("%s/%s", evt.Neighbour.Address, evt.Neighbour.Interface)
			}
		case "route":
			if evt.Route != nil {
				subject = evt.Route.Prefix
			}
		case "xroute":
			if evt.Xroute != nil {
				subject = evt.Xroute.Prefix
			}
		}
		return fmt.Sprintf("[%s] %s %s\n", evt.Kind, evt.Table, subject), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func marshalIndent(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

func flush(w *tabwriter.Writer, buf *strings.Builder) (string, error) {
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}
	return buf.String(), nil
}
