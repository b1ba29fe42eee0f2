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

	"wordsale/native/wordsale"
)

var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv("WORDSALE_RPC_TOKEN")

func main() {
	args := os.Args[1:]
	var err error
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "key":
		if len(args) < 2 {
			fmt.Println("Usage: key <word>")
			return
		}
		fmt.Println(wordsale.WordKey(args[1]))
	case "filter":
		filterCommand(args[1:])
	case "create":
		if len(args) < 5 {
			fmt.Println("Usage: create <buyer> <seller> <collateral> <nonce>")
			return
		}
		call("wordsale_create", map[string]interface{}{
			"buyer":      args[1],
			"seller":     args[2],
			"collateral": args[3],
			"nonce":      jsonNumber(args[4]),
		})
	case "commit":
		requirePayment(args, "commit")
	case "deposit":
		requirePayment(args, "deposit")
	case "send-filter":
		if len(args) < 4 {
			fmt.Println("Usage: send-filter <saleId> <caller> <filter>")
			return
		}
		call("wordsale_sendBloomFilter", map[string]interface{}{
			"id": args[1], "caller": args[2], "filter": args[3],
		})
	case "start":
		if len(args) < 6 {
			fmt.Println("Usage: start <saleId> <caller> <penalty> <factorPercent> <value>")
			return
		}
		call("wordsale_startSale", map[string]interface{}{
			"id": args[1], "caller": args[2], "penalty": args[3],
			"factorPercent": jsonNumber(args[4]), "value": args[5],
		})
	case "accept":
		requireCaller(args, "wordsale_acceptSale", "accept")
	case "refuse":
		requireCaller(args, "wordsale_refuseSale", "refuse")
	case "send-words":
		if len(args) < 4 {
			fmt.Println("Usage: send-words <saleId> <caller> <word> [word...]")
			return
		}
		call("wordsale_sendWords", map[string]interface{}{
			"id": args[1], "caller": args[2], "words": args[3:],
		})
	case "withdraw":
		requireCaller(args, "wordsale_withdraw", "withdraw")
	case "withdrawable":
		if len(args) < 3 {
			fmt.Println("Usage: withdrawable <saleId> <address>")
			return
		}
		call("wordsale_withdrawable", map[string]interface{}{"id": args[1], "address": args[2]})
	case "get":
		if len(args) < 2 {
			fmt.Println("Usage: get <saleId>")
			return
		}
		call("wordsale_get", map[string]interface{}{"id": args[1]})
	case "balance":
		if len(args) < 2 {
			fmt.Println("Usage: balance <address>")
			return
		}
		call("wordsale_balance", map[string]interface{}{"address": args[1]})
	case "fund":
		if len(args) < 3 {
			fmt.Println("Usage: fund <address> <amount>")
			return
		}
		call("wordsale_fund", map[string]interface{}{"address": args[1], "amount": args[2]})
	case "events":
		call("wordsale_events", map[string]interface{}{})
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func requirePayment(args []string, name string) {
	if len(args) < 4 {
		fmt.Printf("Usage: %s <saleId> <caller> <value>\n", name)
		return
	}
	method := "wordsale_commitCollateral"
	if name == "deposit" {
		method = "wordsale_deposit"
	}
	call(method, map[string]interface{}{"id": args[1], "caller": args[2], "value": args[3]})
}

func requireCaller(args []string, method, name string) {
	if len(args) < 3 {
		fmt.Printf("Usage: %s <saleId> <caller>\n", name)
		return
	}
	call(method, map[string]interface{}{"id": args[1], "caller": args[2]})
}

// filterCommand computes a Bloom-filter commitment locally so a party never
// has to send its word list anywhere before the dispute phase.
func filterCommand(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	hashes := fs.Uint("hashes", 3, "number of hash rounds per word")
	size := fs.Uint("size", 256, "filter size in bits")
	hexOut := fs.Bool("hex", false, "print the filter as 0x-prefixed hex")
	_ = fs.Parse(args)
	words := fs.Args()
	if len(words) == 0 {
		fmt.Println("Usage: filter [-hashes N] [-size N] [-hex] <word> [word...]")
		return
	}
	filter := wordsale.BuildFilter(words, uint32(*hashes), uint32(*size))
	if *hexOut {
		fmt.Printf("0x%x\n", filter)
		return
	}
	fmt.Println(filter)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8645"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

// jsonNumber keeps numeric arguments numeric on the wire instead of quoting
// them as strings.
func jsonNumber(s string) json.RawMessage {
	trimmed := strings.TrimSpace(s)
	var probe float64
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return json.RawMessage(`0`)
	}
	return json.RawMessage(trimmed)
}

type rpcEnvelope struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int         `json:"id"`
}

type rpcReply struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int         `json:"code"`
		Message string      `json:"message"`
		Data    interface{} `json:"data"`
	} `json:"error"`
}

func call(method string, params map[string]interface{}) {
	payload, err := json.Marshal(rpcEnvelope{
		JSONRPC: "2.0",
		Method:  method,
		Params:  []interface{}{params},
		ID:      1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding request: %v\n", err)
		os.Exit(1)
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(payload))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if rpcAuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+rpcAuthToken)
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error contacting %s: %v\n", rpcEndpoint, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading response: %v\n", err)
		os.Exit(1)
	}
	var reply rpcReply
	if err := json.Unmarshal(body, &reply); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding response: %v\n%s\n", err, body)
		os.Exit(1)
	}
	if reply.Error != nil {
		fmt.Fprintf(os.Stderr, "RPC error %d: %s (%v)\n", reply.Error.Code, reply.Error.Message, reply.Error.Data)
		os.Exit(1)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, reply.Result, "", "  "); err != nil {
		fmt.Println(string(reply.Result))
		return
	}
	fmt.Println(pretty.String())
}

func printUsage() {
	fmt.Println(`Usage: wordsale-cli [--rpc <url>] <command> [args]

Local commands:
  key <word>                                     Print the numeric key of a word
  filter [-hashes N] [-size N] [-hex] <words...>  Build a Bloom-filter commitment

Sale commands (sent to the daemon):
  create <buyer> <seller> <collateral> <nonce>
  commit <saleId> <caller> <value>
  send-filter <saleId> <caller> <filter>
  start <saleId> <caller> <penalty> <factorPercent> <value>
  deposit <saleId> <caller> <value>
  accept <saleId> <caller>
  refuse <saleId> <caller>
  send-words <saleId> <caller> <word> [word...]
  withdraw <saleId> <caller>
  withdrawable <saleId> <address>
  get <saleId>
  balance <address>
  fund <address> <amount>
  events

Environment:
  RPC_URL              RPC endpoint (default http://localhost:8645)
  WORDSALE_RPC_TOKEN   Bearer token sent with every request`)
}
