// Command halbridge-probe is an interactive diagnostic client for the
// websocket protocol. It dials a peer, prints every frame the peer
// sends, and lets you hand-craft frames to see how the peer reacts --
// useful when a mechanism misbehaves and you want to take the bridge
// out of the loop.
//
// Usage:
//
//	halbridge-probe [-uri ws://localhost:3300/wpilibws]
//
// Commands at the prompt:
//
//	report <device> <count> <period>   Send an encoder report
//	init <PWM|Encoder> <device>        Send an init command
//	speed <device> <value>             Send a PWM speed command
//	raw <json>                         Send a raw frame verbatim
//	quit                               Exit
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/subsystemsim/halbridge/pkg/transport"
	"github.com/subsystemsim/halbridge/pkg/wire"
)

var uri = flag.String("uri", transport.DefaultEndpoint, "Peer websocket URI")

// probeHandler prints everything the peer sends.
type probeHandler struct{}

func (probeHandler) OnMessage(msg []byte) {
	fmt.Printf("\r<< %s\n", msg)
}

func (probeHandler) OnStateChange(oldState, newState transport.ConnectionState) {
	fmt.Printf("\r-- connection %s -> %s\n", oldState, newState)
}

func (probeHandler) OnError(err error) {
	fmt.Printf("\r!! %v\n", err)
}

func main() {
	flag.Parse()
	stdlog.SetFlags(stdlog.Ltime)

	conn := transport.NewConnection(transport.DefaultConnectionConfig(), probeHandler{})
	if err := conn.Connect(context.Background(), *uri); err != nil {
		stdlog.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "probe> ",
		HistoryFile:     os.TempDir() + "/halbridge-probe.history",
		InterruptPrompt: "^C",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("report"),
			readline.PcItem("init",
				readline.PcItem("PWM"),
				readline.PcItem("Encoder"),
			),
			readline.PcItem("speed"),
			readline.PcItem("raw"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		stdlog.Fatalf("readline: %v", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "exit":
			return
		case "help":
			printHelp()
		case "raw":
			sendRaw(conn, strings.TrimSpace(strings.TrimPrefix(line, "raw")))
		case "report":
			cmdReport(conn, fields[1:])
		case "init":
			cmdInit(conn, fields[1:])
		case "speed":
			cmdSpeed(conn, fields[1:])
		default:
			fmt.Printf("unknown command %q, try help\n", fields[0])
		}
	}
}

func printHelp() {
	fmt.Print(`commands:
  report <device> <count> <period>   send an encoder report
  init <PWM|Encoder> <device>        send an init command
  speed <device> <value>             send a PWM speed command
  raw <json>                         send a raw frame verbatim
  quit                               exit
`)
}

func send(conn *transport.Connection, msg *wire.Message) {
	data, err := wire.EncodeMessage(msg)
	if err != nil {
		fmt.Printf("encode: %v\n", err)
		return
	}
	sendRaw(conn, string(data))
}

func sendRaw(conn *transport.Connection, payload string) {
	if payload == "" {
		fmt.Println("nothing to send")
		return
	}
	if err := conn.Send([]byte(payload)); err != nil {
		fmt.Printf("send: %v\n", err)
		return
	}
	fmt.Printf(">> %s\n", payload)
}

func cmdReport(conn *transport.Connection, args []string) {
	if len(args) != 3 {
		fmt.Println("usage: report <device> <count> <period>")
		return
	}
	count, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Printf("bad count %q\n", args[1])
		return
	}
	period, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		fmt.Printf("bad period %q\n", args[2])
		return
	}
	send(conn, wire.Report(wire.DeviceTypeEncoder, args[0], map[string]any{
		wire.FieldCount:  count,
		wire.FieldPeriod: period,
	}))
}

func cmdInit(conn *transport.Connection, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: init <PWM|Encoder> <device>")
		return
	}
	deviceType := wire.DeviceType(args[0])
	if _, known := wire.RoleOf(deviceType); !known {
		fmt.Printf("unknown device type %q\n", args[0])
		return
	}
	send(conn, &wire.Message{
		Type:   deviceType,
		Device: args[1],
		Data:   map[string]any{wire.CommandKey(wire.FieldInit): true},
	})
}

func cmdSpeed(conn *transport.Connection, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: speed <device> <value>")
		return
	}
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Printf("bad speed %q\n", args[1])
		return
	}
	send(conn, &wire.Message{
		Type:   wire.DeviceTypePWM,
		Device: args[0],
		Data:   map[string]any{wire.CommandKey(wire.FieldSpeed): value},
	})
}
