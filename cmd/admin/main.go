// Command admin is the operator CLI over the server's REST surface:
// inspect networks, drive the clock, and submit actions by hand.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "networks":
		networksCmd(args)
	case "clock":
		clockCmd(args)
	case "force-tick":
		forceTickCmd(args)
	case "pause", "resume":
		modeShortcutCmd(cmd, args)
	case "mode":
		modeCmd(args)
	case "interval":
		intervalCmd(args)
	case "market":
		getCmd(args, "market")
	case "properties":
		getCmd(args, "properties")
	case "participants":
		getCmd(args, "participants")
	case "healing":
		getCmd(args, "healing")
	case "ledger":
		ledgerCmd(args)
	case "submit":
		submitCmd(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: admin <command> [flags]

commands:
  networks                         list networks
  clock       -network <id>        clock status
  force-tick  -network <id>        run one tick now
  pause       -network <id>        pause the clock
  resume      -network <id>        resume the clock
  mode        -network <id> -mode <auto|manual|paused>
  interval    -network <id> -seconds <n> | -preset <name>
  market      -network <id>        market snapshot
  properties  -network <id>        property list
  participants -network <id>       participant list
  healing     -network <id>        healing strategies and weights
  ledger      -network <id> [-participant p] [-property p]
  submit      -network <id> -actor <id> -type <TYPE> -payload <json> [-id <action-id>]

common flags:
  -server http://127.0.0.1:8080`)
}

type client struct {
	base string
	http *http.Client
}

func commonFlags(fs *flag.FlagSet) (server, networkID *string) {
	server = fs.String("server", "http://127.0.0.1:8080", "server base url")
	networkID = fs.String("network", "", "network id (empty = server default)")
	return
}

func newClient(server string) *client {
	return &client{
		base: strings.TrimRight(server, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) url(networkID, path string) string {
	return fmt.Sprintf("%s/v1/networks/%s/%s", c.base, networkID, path)
}

func (c *client) get(url string) {
	resp, err := c.http.Get(url)
	if err != nil {
		fatal("%v", err)
	}
	printResponse(resp)
}

func (c *client) post(url string, body any) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fatal("%v", err)
		}
		rd = bytes.NewReader(b)
	}
	resp, err := c.http.Post(url, "application/json", rd)
	if err != nil {
		fatal("%v", err)
	}
	printResponse(resp)
}

// printResponse pretty-prints the JSON body and exits non-zero on error
// statuses so the CLI scripts cleanly.
func printResponse(resp *http.Response) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		fatal("read response: %v", err)
	}
	var buf bytes.Buffer
	if json.Indent(&buf, raw, "", "  ") == nil {
		fmt.Println(buf.String())
	} else {
		fmt.Println(string(raw))
	}
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

func networksCmd(args []string) {
	fs := flag.NewFlagSet("networks", flag.ExitOnError)
	server, _ := commonFlags(fs)
	_ = fs.Parse(args)
	newClient(*server).get(*server + "/v1/networks")
}

func clockCmd(args []string) {
	fs := flag.NewFlagSet("clock", flag.ExitOnError)
	server, networkID := commonFlags(fs)
	_ = fs.Parse(args)
	c := newClient(*server)
	c.get(c.url(*networkID, "clock"))
}

func forceTickCmd(args []string) {
	fs := flag.NewFlagSet("force-tick", flag.ExitOnError)
	server, networkID := commonFlags(fs)
	_ = fs.Parse(args)
	c := newClient(*server)
	c.post(c.url(*networkID, "clock/force-tick"), nil)
}

func modeShortcutCmd(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	server, networkID := commonFlags(fs)
	_ = fs.Parse(args)
	c := newClient(*server)
	c.post(c.url(*networkID, "clock/"+cmd), nil)
}

func modeCmd(args []string) {
	fs := flag.NewFlagSet("mode", flag.ExitOnError)
	server, networkID := commonFlags(fs)
	mode := fs.String("mode", "", "auto, manual or paused")
	_ = fs.Parse(args)
	if *mode == "" {
		fatal("missing -mode")
	}
	c := newClient(*server)
	c.post(c.url(*networkID, "clock/mode"), map[string]string{"mode": *mode})
}

func intervalCmd(args []string) {
	fs := flag.NewFlagSet("interval", flag.ExitOnError)
	server, networkID := commonFlags(fs)
	seconds := fs.Int("seconds", 0, "countdown length in seconds")
	preset := fs.String("preset", "", "named speed from the network's preset table")
	_ = fs.Parse(args)
	c := newClient(*server)
	switch {
	case *preset != "":
		c.post(c.url(*networkID, "clock/interval"), map[string]string{"preset": *preset})
	case *seconds > 0:
		c.post(c.url(*networkID, "clock/interval"), map[string]int{"seconds": *seconds})
	default:
		fatal("missing -seconds or -preset")
	}
}

func getCmd(args []string, path string) {
	fs := flag.NewFlagSet(path, flag.ExitOnError)
	server, networkID := commonFlags(fs)
	_ = fs.Parse(args)
	c := newClient(*server)
	c.get(c.url(*networkID, path))
}

func ledgerCmd(args []string) {
	fs := flag.NewFlagSet("ledger", flag.ExitOnError)
	server, networkID := commonFlags(fs)
	participant := fs.String("participant", "", "filter by participant id")
	property := fs.String("property", "", "filter by property id")
	_ = fs.Parse(args)
	c := newClient(*server)
	url := c.url(*networkID, "ledger")
	sep := "?"
	if *participant != "" {
		url += sep + "participant=" + *participant
		sep = "&"
	}
	if *property != "" {
		url += sep + "property=" + *property
	}
	c.get(url)
}

func submitCmd(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	server, networkID := commonFlags(fs)
	actor := fs.String("actor", "", "acting participant id")
	actionType := fs.String("type", "", "action type, e.g. BUY")
	payload := fs.String("payload", "", "action payload as JSON")
	actionID := fs.String("id", "", "client-chosen action id (optional)")
	priority := fs.Int("priority", 0, "action priority 0..100")
	_ = fs.Parse(args)
	if *actor == "" || *actionType == "" || *payload == "" {
		fatal("missing -actor, -type or -payload")
	}
	if !json.Valid([]byte(*payload)) {
		fatal("-payload is not valid JSON")
	}

	req := map[string]any{
		"actor_id": *actor,
		"action": map[string]any{
			"id":       *actionID,
			"type":     *actionType,
			"priority": *priority,
			"payload":  json.RawMessage(*payload),
		},
	}
	c := newClient(*server)
	c.post(c.url(*networkID, "actions"), req)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
