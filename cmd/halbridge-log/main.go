// Command halbridge-log views and analyzes recorded bridge event logs.
//
// Log files are created by running halbridge with the -record flag.
//
// Usage:
//
//	halbridge-log <command> [flags] <file.blog>
//
// Commands:
//
//	view     View log file in human-readable format
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	halbridge-log view session.blog
//
//	# View only outgoing wire messages
//	halbridge-log view -direction out -layer wire session.blog
//
//	# Show statistics
//	halbridge-log stats session.blog
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/subsystemsim/halbridge/pkg/log"
)

const usage = `halbridge-log - Bridge event log analyzer

Usage:
  halbridge-log <command> [flags] <file.blog>

Commands:
  view     View log file in human-readable format
  stats    Show statistics about the log file

Use "halbridge-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	layer := fs.String("layer", "", "Filter by layer (transport, wire, loop)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, state, error)")
	device := fs.String("device", "", "Filter by device identifier")
	session := fs.String("session", "", "Filter by session ID")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		os.Exit(1)
	}

	filter, err := buildFilter(*layer, *direction, *category, *device, *session)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	reader, err := log.NewFilteredReader(fs.Arg(0), filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printEvent(event)
	}
}

func buildFilter(layer, direction, category, device, session string) (log.Filter, error) {
	var filter log.Filter
	filter.Device = device
	filter.SessionID = session

	switch layer {
	case "":
	case "transport":
		l := log.LayerTransport
		filter.Layer = &l
	case "wire":
		l := log.LayerWire
		filter.Layer = &l
	case "loop":
		l := log.LayerLoop
		filter.Layer = &l
	default:
		return filter, fmt.Errorf("unknown layer %q", layer)
	}

	switch direction {
	case "":
	case "in":
		d := log.DirectionIn
		filter.Direction = &d
	case "out":
		d := log.DirectionOut
		filter.Direction = &d
	default:
		return filter, fmt.Errorf("unknown direction %q", direction)
	}

	switch category {
	case "":
	case "message":
		c := log.CategoryMessage
		filter.Category = &c
	case "state":
		c := log.CategoryState
		filter.Category = &c
	case "error":
		c := log.CategoryError
		filter.Category = &c
	default:
		return filter, fmt.Errorf("unknown category %q", category)
	}

	return filter, nil
}

func printEvent(e log.Event) {
	ts := e.Timestamp.Format("15:04:05.000000")
	prefix := fmt.Sprintf("%s %-3s %-9s", ts, e.Direction, e.Layer)

	switch {
	case e.Message != nil:
		fmt.Printf("%s %s %s %v\n", prefix, e.Message.DeviceType, e.Message.Device, e.Message.Fields)
	case e.StateChange != nil:
		sc := e.StateChange
		if sc.Reason != "" {
			fmt.Printf("%s %s %s -> %s (%s)\n", prefix, sc.Entity, sc.OldState, sc.NewState, sc.Reason)
		} else {
			fmt.Printf("%s %s %s -> %s\n", prefix, sc.Entity, sc.OldState, sc.NewState)
		}
	case e.Error != nil:
		fatal := ""
		if e.Error.Fatal {
			fatal = " FATAL"
		}
		fmt.Printf("%s ERROR%s [%s] %s\n", prefix, fatal, e.Error.Context, e.Error.Message)
	case e.Frame != nil:
		fmt.Printf("%s frame %d bytes\n", prefix, e.Frame.Size)
	default:
		fmt.Printf("%s %s\n", prefix, e.Category)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		os.Exit(1)
	}

	reader, err := log.NewReader(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer reader.Close()

	var total, in, out, errCount int
	byDevice := make(map[string]int)
	sessions := make(map[string]bool)

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		total++
		sessions[event.SessionID] = true
		if event.Direction == log.DirectionIn {
			in++
		} else {
			out++
		}
		if event.Category == log.CategoryError {
			errCount++
		}
		if event.Message != nil {
			byDevice[string(event.Message.DeviceType)+" "+event.Message.Device]++
		}
	}

	fmt.Printf("Events:   %d (%d in, %d out)\n", total, in, out)
	fmt.Printf("Sessions: %d\n", len(sessions))
	fmt.Printf("Errors:   %d\n", errCount)

	if len(byDevice) > 0 {
		fmt.Println("Messages by device:")
		devices := make([]string, 0, len(byDevice))
		for d := range byDevice {
			devices = append(devices, d)
		}
		sort.Strings(devices)
		for _, d := range devices {
			fmt.Printf("  %-16s %d\n", d, byDevice[d])
		}
	}
}
