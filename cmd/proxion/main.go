// Command proxion classifies a deployed Ethereum contract as an
// upgradeable proxy or not, dumping the result record as JSON to stdout —
// a thin CLI wrapper around the proxy and analysis packages, mirroring
// proxion/__main__.py's argument surface for the in-scope portions.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	proxion "github.com/onchainlabs/proxion"
	"github.com/onchainlabs/proxion/analysis"
	"github.com/onchainlabs/proxion/proxy"
	"github.com/onchainlabs/proxion/rpc"
)

func main() {
	app := &cli.App{
		Name:  "proxion",
		Usage: "detect and classify upgradeable proxy contracts from their runtime bytecode",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rpc-url", Usage: "JSON-RPC endpoint", Value: "https://eth.llamarpc.com"},
			&cli.StringFlag{Name: "block", Usage: "block number or \"latest\"", Value: "latest"},
			&cli.Uint64Flag{Name: "gas", Usage: "nominal gas budget for the outermost emulator frame", Value: 1_000_000},
			&cli.BoolFlag{Name: "debug", Usage: "log every dispatched instruction (at trace level, shown with --log-level trace)"},
			&cli.BoolFlag{Name: "structural", Usage: "also run the structural collision analyzer against discovered logic contracts"},
			&cli.StringFlag{Name: "log-level", Usage: "crit|error|warn|info|debug|trace", Value: "info"},
		},
		ArgsUsage: "<address>",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Crit("proxion: fatal", "err", err)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one argument: the contract address", 1)
	}
	setLogLevel(c.String("log-level"))

	addr := common.HexToAddress(c.Args().First())
	exp := rpc.NewClient(c.String("rpc-url"))

	cfg := proxion.Config{
		Block: c.String("block"),
		Gas:   c.Uint64("gas"),
		Debug: c.Bool("debug"),
	}

	classification := proxy.Classify(context.Background(), addr, exp, cfg)

	out := map[string]interface{}{"proxy_info": classification}

	if c.Bool("structural") && classification.CurrentImplementation != nil {
		logicAddrs := []common.Address{common.HexToAddress(*classification.CurrentImplementation)}
		for _, old := range classification.OldImplementations {
			logicAddrs = append(logicAddrs, common.HexToAddress(old))
		}
		report, err := analysis.Analyze(addr, logicAddrs, exp, cfg.Block)
		if err != nil {
			log.Warn("structural analysis failed", "err", err)
		} else {
			out["adv_check"] = report
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}

func setLogLevel(level string) {
	var lvl slog.Level
	switch level {
	case "crit":
		lvl = log.LevelCrit
	case "error":
		lvl = slog.LevelError
	case "warn":
		lvl = slog.LevelWarn
	case "debug":
		lvl = slog.LevelDebug
	case "trace":
		lvl = log.LevelTrace
	default:
		lvl = slog.LevelInfo
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, true)))
}
