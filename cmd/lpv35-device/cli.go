package main

import (
	"bufio"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/edgelink/lpv35/pkg/ble"
	"github.com/edgelink/lpv35/pkg/dispatch"
	"github.com/edgelink/lpv35/pkg/dpschema"
	"github.com/edgelink/lpv35/pkg/lan"
)

// CLI is a line-oriented command dispatcher grounded on the original
// firmware's switch_demo cli_cmd.c token table: each input line is a command
// name followed by space-separated arguments.
type CLI struct {
	schema  *dpschema.Schema
	facade  *dispatch.Facade
	lan     *lan.Engine
	ble     *ble.Session
	dev     *deviceState
	kv      map[string]string
	scanner *bufio.Scanner
}

// Run reads commands from stdin until EOF or "quit".
func (c *CLI) Run() {
	fmt.Print("> ")
	for c.scanner.Scan() {
		line := strings.TrimSpace(c.scanner.Text())
		if line != "" {
			if !c.dispatch(line) {
				return
			}
		}
		fmt.Print("> ")
	}
}

func (c *CLI) dispatch(line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		c.cmdHelp()
	case "switch":
		c.cmdSwitch(args)
	case "dp":
		c.cmdDP(args)
	case "query":
		c.cmdQuery()
	case "sys":
		c.cmdSys(args)
	case "kv":
		c.cmdKV(args)
	case "reset":
		c.cmdReset()
	case "start":
		c.dev.setCloudConnected(true)
		fmt.Println("cloud: connected")
	case "stop":
		c.dev.setCloudConnected(false)
		fmt.Println("cloud: disconnected")
	case "netmgr":
		c.cmdNetmgr(args)
	case "mem":
		c.cmdMem()
	case "quit", "exit":
		return false
	default:
		fmt.Printf("unknown command %q (try 'help')\n", cmd)
	}
	return true
}

func (c *CLI) cmdHelp() {
	fmt.Println(`commands:
  switch <on|off>       report dp 1 (bool) through whichever transport is live
  dp <id> <json-value>  report an arbitrary dp id with a JSON-encoded value
  query                 print the schema's current cached dp values
  sys <args...>         log a diagnostic command (no shell execution)
  kv <get|set> <k> [v]  read/write the in-memory key-value store
  reset                 clear bound/activation state (as if BLE UNBONDING_REQ fired)
  start | stop          toggle simulated cloud (MQTT) connectivity
  netmgr <status>       print current network status byte
  mem                   print Go runtime memory stats
  quit                  exit`)
}

func (c *CLI) cmdSwitch(args []string) {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		fmt.Println("usage: switch <on|off>")
		return
	}
	on := args[0] == "on"
	if err := c.facade.Report([]dpschema.DPValue{{ID: 1, Value: on}}, 0); err != nil {
		fmt.Printf("report failed: %v\n", err)
		return
	}
	fmt.Printf("dp 1 reported: %v\n", on)
}

func (c *CLI) cmdDP(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: dp <id> <json-value>")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id < 0 || id > 255 {
		fmt.Println("dp id must be 0-255")
		return
	}
	value, err := parseJSONValue(args[1])
	if err != nil {
		fmt.Printf("invalid value: %v\n", err)
		return
	}
	if err := c.facade.Report([]dpschema.DPValue{{ID: uint8(id), Value: value}}, dpschema.FlagNoFilter); err != nil {
		fmt.Printf("report failed: %v\n", err)
		return
	}
	fmt.Printf("dp %d reported: %v\n", id, value)
}

func (c *CLI) cmdQuery() {
	body, err := c.schema.Query()
	if err != nil {
		fmt.Printf("query failed: %v\n", err)
		return
	}
	fmt.Println(string(body))
}

// cmdSys deliberately does NOT shell out to the host, unlike the original
// firmware's "sys" command (apps/tuya_cloud/switch_demo/src/cli_cmd.c calls
// system(cmd) on raw operator input). Running arbitrary strings through the
// shell from a network-reachable control surface is a command-injection
// hazard this example declines to reproduce.
func (c *CLI) cmdSys(args []string) {
	fmt.Printf("sys: logging only, not executed: %q\n", strings.Join(args, " "))
}

func (c *CLI) cmdKV(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: kv <get|set> <key> [value]")
		return
	}
	switch args[0] {
	case "get":
		v, ok := c.kv[args[1]]
		if !ok {
			fmt.Println("(not set)")
			return
		}
		fmt.Println(v)
	case "set":
		if len(args) != 3 {
			fmt.Println("usage: kv set <key> <value>")
			return
		}
		c.kv[args[1]] = args[2]
		fmt.Println("ok")
	default:
		fmt.Println("usage: kv <get|set> <key> [value]")
	}
}

func (c *CLI) cmdReset() {
	c.dev.setBound(false)
	fmt.Println("device unbound")
}

func (c *CLI) cmdNetmgr(args []string) {
	if len(args) != 1 || args[0] != "status" {
		fmt.Println("usage: netmgr status")
		return
	}
	fmt.Printf("bound=%v cloud_connected=%v net_status=%d lan_sessions=%d ble_paired=%v\n",
		c.dev.isBound(), c.dev.Connected(), c.dev.netStatus(), c.lan.SessionCount(), c.ble.Paired())
}

func (c *CLI) cmdMem() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	fmt.Printf("alloc=%d KB sys=%d KB numGC=%d\n", m.Alloc/1024, m.Sys/1024, m.NumGC)
}

// parseJSONValue interprets a raw CLI token as a dp value: true/false,
// a quoted string, an integer, or a bare string.
func parseJSONValue(raw string) (any, error) {
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`) && len(raw) >= 2 {
		return strings.Trim(raw, `"`), nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	return raw, nil
}
