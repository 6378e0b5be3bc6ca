// Command ledgerctl is a command-line client for the trust ledger's HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
)

var flagServer = &cli.StringFlag{
	Name:    "server",
	Usage:   "base URL of the ledger HTTP API",
	EnvVars: []string{"LEDGERCTL_SERVER"},
	Value:   "http://127.0.0.1:8081",
}

var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Usage: "request timeout",
	Value: 30 * time.Second,
}

var flagActor = &cli.StringFlag{
	Name:  "actor",
	Usage: "who is performing the action, recorded in the audit log",
}

var flagOrder = &cli.StringFlag{
	Name:  "order",
	Usage: "asc or desc",
	Value: "asc",
}

var flagCSV = &cli.BoolFlag{
	Name:  "csv",
	Usage: "print CSV instead of JSON",
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:                 "ledgerctl",
		Usage:                "inspect and drive the trust ledger",
		EnableBashCompletion: true,
		Flags:                []cli.Flag{flagServer, flagTimeout},
		Commands: []*cli.Command{
			datasetsCmd,
			analyzeCmd,
			insightCmd,
			ledgerCmd,
			reportCmd,
			trustCmd,
			timelineCmd,
			auditCmd,
			versionsCmd,
			registerCmd,
			proofCmd,
			verifyCmd,
		},
	}
	app.Setup()
	return app
}

func getClient(cctx *cli.Context) *ledgerClient {
	return newLedgerClient(cctx.String(flagServer.Name), cctx.Duration(flagTimeout.Name))
}

// datasetArg parses the first positional argument as a dataset id.
func datasetArg(cctx *cli.Context) (int64, error) {
	if cctx.NArg() < 1 {
		return 0, fmt.Errorf("dataset id is required")
	}
	id, err := strconv.ParseInt(cctx.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid dataset id %q", cctx.Args().First())
	}
	return id, nil
}

func datasetPath(id int64, suffix string) string {
	return "/api/datasets/" + strconv.FormatInt(id, 10) + suffix
}

// printJSON re-indents a JSON response body onto the app's writer.
func printJSON(w io.Writer, data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = w.Write(data)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

// getAndPrint fetches path and prints the body.
func getAndPrint(cctx *cli.Context, path string) error {
	data, err := getClient(cctx).do(cctx.Context, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return printJSON(cctx.App.Writer, data)
}

var datasetsCmd = &cli.Command{
	Name:  "datasets",
	Usage: "dataset management",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "list all datasets",
			Action: func(cctx *cli.Context) error {
				return getAndPrint(cctx, "/api/datasets")
			},
		},
		{
			Name:      "get",
			Usage:     "show one dataset",
			ArgsUsage: "<id>",
			Action: func(cctx *cli.Context) error {
				id, err := datasetArg(cctx)
				if err != nil {
					return err
				}
				return getAndPrint(cctx, datasetPath(id, ""))
			},
		},
		{
			Name:  "create",
			Usage: "register a dataset from a file or a precomputed content hash",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "name", Usage: "dataset name, defaults to the file name"},
				&cli.StringFlag{Name: "description"},
				&cli.StringFlag{Name: "owner", Usage: "owner wallet address", Required: true},
				&cli.StringFlag{Name: "file", Usage: "file to upload and hash"},
				&cli.StringFlag{Name: "hash", Usage: "content hash, when the file is not uploaded"},
				&cli.StringFlag{Name: "filename", Usage: "original file name recorded with --hash"},
			},
			Action: func(cctx *cli.Context) error {
				client := getClient(cctx)
				var (
					data []byte
					err  error
				)
				switch {
				case cctx.IsSet("file"):
					data, err = client.upload(cctx.Context, cctx.String("file"), map[string]string{
						"name":         cctx.String("name"),
						"description":  cctx.String("description"),
						"owner_wallet": cctx.String("owner"),
					})
				case cctx.IsSet("hash"):
					data, err = client.do(cctx.Context, http.MethodPost, "/api/datasets", map[string]any{
						"name":         cctx.String("name"),
						"description":  cctx.String("description"),
						"owner_wallet": cctx.String("owner"),
						"content_hash": cctx.String("hash"),
						"filename":     cctx.String("filename"),
					})
				default:
					return fmt.Errorf("one of --file or --hash is required")
				}
				if err != nil {
					return err
				}
				return printJSON(cctx.App.Writer, data)
			},
		},
		{
			Name:      "delete",
			Usage:     "permanently delete a dataset and its history",
			ArgsUsage: "<id>",
			Flags:     []cli.Flag{flagActor},
			Action: func(cctx *cli.Context) error {
				id, err := datasetArg(cctx)
				if err != nil {
					return err
				}
				path := datasetPath(id, "")
				if actor := cctx.String(flagActor.Name); actor != "" {
					path += "?actor=" + url.QueryEscape(actor)
				}
				if _, err := getClient(cctx).do(cctx.Context, http.MethodDelete, path, nil); err != nil {
					return err
				}
				fmt.Fprintf(cctx.App.Writer, "dataset %d deleted\n", id)
				return nil
			},
		},
		{
			Name:      "stage",
			Usage:     "show the dataset's lifecycle stage",
			ArgsUsage: "<id>",
			Action: func(cctx *cli.Context) error {
				id, err := datasetArg(cctx)
				if err != nil {
					return err
				}
				return getAndPrint(cctx, datasetPath(id, "/stage"))
			},
		},
	},
}

var analyzeCmd = &cli.Command{
	Name:      "analyze",
	Usage:     "run the analysis oracle and record its insights",
	ArgsUsage: "<id>",
	Action: func(cctx *cli.Context) error {
		id, err := datasetArg(cctx)
		if err != nil {
			return err
		}
		data, err := getClient(cctx).do(cctx.Context, http.MethodPost, datasetPath(id, "/analyze"), nil)
		if err != nil {
			return err
		}
		return printJSON(cctx.App.Writer, data)
	},
}

var insightCmd = &cli.Command{
	Name:      "insight",
	Usage:     "record one insight for a dataset",
	ArgsUsage: "<id>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "text", Required: true},
		&cli.Float64Flag{Name: "confidence", Value: 1},
	},
	Action: func(cctx *cli.Context) error {
		id, err := datasetArg(cctx)
		if err != nil {
			return err
		}
		data, err := getClient(cctx).do(cctx.Context, http.MethodPost, datasetPath(id, "/insights"), map[string]any{
			"insight_text": cctx.String("text"),
			"confidence":   cctx.Float64("confidence"),
		})
		if err != nil {
			return err
		}
		return printJSON(cctx.App.Writer, data)
	},
}

var ledgerCmd = &cli.Command{
	Name:      "ledger",
	Usage:     "list or search a dataset's insights",
	ArgsUsage: "<id>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "only entries containing this text, ignoring case"},
		flagCSV,
	},
	Action: func(cctx *cli.Context) error {
		id, err := datasetArg(cctx)
		if err != nil {
			return err
		}
		if cctx.Bool(flagCSV.Name) {
			return getRaw(cctx, datasetPath(id, "/ledger.csv"))
		}
		path := datasetPath(id, "/ledger")
		if q := cctx.String("query"); q != "" {
			path += "?q=" + url.QueryEscape(q)
		}
		return getAndPrint(cctx, path)
	},
}

var reportCmd = &cli.Command{
	Name:      "report",
	Usage:     "show a dataset's analysis report with per-insight confidence",
	ArgsUsage: "<id>",
	Action: func(cctx *cli.Context) error {
		id, err := datasetArg(cctx)
		if err != nil {
			return err
		}
		return getAndPrint(cctx, datasetPath(id, "/report"))
	},
}

var trustCmd = &cli.Command{
	Name:      "trust",
	Usage:     "show or change a dataset's trust scores",
	ArgsUsage: "<id>",
	Action: func(cctx *cli.Context) error {
		id, err := datasetArg(cctx)
		if err != nil {
			return err
		}
		return getAndPrint(cctx, datasetPath(id, "/trust"))
	},
	Subcommands: []*cli.Command{
		{
			Name:      "set",
			Usage:     "set one or more sub-scores",
			ArgsUsage: "<id>",
			Flags: []cli.Flag{
				&cli.Float64Flag{Name: "completeness"},
				&cli.Float64Flag{Name: "freshness"},
				&cli.Float64Flag{Name: "consistency"},
				&cli.Float64Flag{Name: "schema"},
				&cli.Float64Flag{Name: "verification"},
				flagActor,
			},
			Action: func(cctx *cli.Context) error {
				id, err := datasetArg(cctx)
				if err != nil {
					return err
				}
				body := map[string]any{}
				for _, name := range []string{"completeness", "freshness", "consistency", "schema", "verification"} {
					if cctx.IsSet(name) {
						body[name] = cctx.Float64(name)
					}
				}
				if len(body) == 0 {
					return fmt.Errorf("at least one score flag is required")
				}
				body["actor"] = cctx.String(flagActor.Name)
				data, err := getClient(cctx).do(cctx.Context, http.MethodPatch, datasetPath(id, "/scores"), body)
				if err != nil {
					return err
				}
				return printJSON(cctx.App.Writer, data)
			},
		},
		{
			Name:      "recompute",
			Usage:     "recompute the trust score from stored sub-scores",
			ArgsUsage: "<id>",
			Action: func(cctx *cli.Context) error {
				id, err := datasetArg(cctx)
				if err != nil {
					return err
				}
				data, err := getClient(cctx).do(cctx.Context, http.MethodPost, datasetPath(id, "/trust/recompute"), nil)
				if err != nil {
					return err
				}
				return printJSON(cctx.App.Writer, data)
			},
		},
	},
}

var timelineCmd = &cli.Command{
	Name:      "timeline",
	Usage:     "show a dataset's lifecycle events",
	ArgsUsage: "<id>",
	Flags:     []cli.Flag{flagOrder, flagCSV},
	Action: func(cctx *cli.Context) error {
		return historyAction(cctx, "/timeline")
	},
}

var auditCmd = &cli.Command{
	Name:      "audit",
	Usage:     "show a dataset's audit log",
	ArgsUsage: "<id>",
	Flags:     []cli.Flag{flagOrder, flagCSV},
	Action: func(cctx *cli.Context) error {
		return historyAction(cctx, "/events")
	},
}

func historyAction(cctx *cli.Context, suffix string) error {
	id, err := datasetArg(cctx)
	if err != nil {
		return err
	}
	if cctx.Bool(flagCSV.Name) {
		suffix += ".csv"
	}
	path := datasetPath(id, suffix) + "?order=" + url.QueryEscape(cctx.String(flagOrder.Name))
	if cctx.Bool(flagCSV.Name) {
		return getRaw(cctx, path)
	}
	return getAndPrint(cctx, path)
}

func getRaw(cctx *cli.Context, path string) error {
	data, err := getClient(cctx).do(cctx.Context, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	_, err = cctx.App.Writer.Write(data)
	return err
}

var versionsCmd = &cli.Command{
	Name:      "versions",
	Usage:     "show a dataset's version chain",
	ArgsUsage: "<id>",
	Action: func(cctx *cli.Context) error {
		id, err := datasetArg(cctx)
		if err != nil {
			return err
		}
		return getAndPrint(cctx, datasetPath(id, "/versions"))
	},
	Subcommands: []*cli.Command{
		{
			Name:      "create",
			Usage:     "record new content as the next version",
			ArgsUsage: "<id>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "hash", Usage: "content hash of the new version", Required: true},
				&cli.IntFlag{Name: "parent", Usage: "version the new content derives from", Required: true},
				flagActor,
			},
			Action: func(cctx *cli.Context) error {
				id, err := datasetArg(cctx)
				if err != nil {
					return err
				}
				data, err := getClient(cctx).do(cctx.Context, http.MethodPost, datasetPath(id, "/versions"), map[string]any{
					"content_hash":   cctx.String("hash"),
					"parent_version": cctx.Int("parent"),
					"actor":          cctx.String(flagActor.Name),
				})
				if err != nil {
					return err
				}
				return printJSON(cctx.App.Writer, data)
			},
		},
	},
}

var registerCmd = &cli.Command{
	Name:      "register",
	Usage:     "register a dataset with the attestation authority",
	ArgsUsage: "<id>",
	Flags:     []cli.Flag{flagActor},
	Action: func(cctx *cli.Context) error {
		id, err := datasetArg(cctx)
		if err != nil {
			return err
		}
		data, err := getClient(cctx).do(cctx.Context, http.MethodPost, "/api/blockchain/register", map[string]any{
			"dataset_id": id,
			"actor":      cctx.String(flagActor.Name),
		})
		if err != nil {
			return err
		}
		return printJSON(cctx.App.Writer, data)
	},
}

var proofCmd = &cli.Command{
	Name:      "proof",
	Usage:     "issue a storage proof for a dataset",
	ArgsUsage: "<id>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "hash", Usage: "content hash to prove, defaults to the current file hash"},
	},
	Action: func(cctx *cli.Context) error {
		id, err := datasetArg(cctx)
		if err != nil {
			return err
		}
		path := datasetPath(id, "/proof")
		if h := cctx.String("hash"); h != "" {
			path += "?content_hash=" + url.QueryEscape(h)
		}
		return getAndPrint(cctx, path)
	},
}

var verifyCmd = &cli.Command{
	Name:      "verify",
	Usage:     "check whether a hash is known to the ledger",
	ArgsUsage: "<hash>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() < 1 {
			return fmt.Errorf("hash is required")
		}
		data, err := getClient(cctx).do(cctx.Context, http.MethodGet, "/api/blockchain/verify/"+url.PathEscape(cctx.Args().First()), nil)
		if err != nil {
			return err
		}
		var res models.HashVerification
		if err := json.Unmarshal(data, &res); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		w := cctx.App.Writer
		fmt.Fprint(w, "  Hash    : ")
		fmt.Fprintln(w, res.Hash)
		fmt.Fprint(w, "  Status  : ")
		if res.Verified {
			color.New(color.FgGreen, color.Bold).Fprintln(w, "VERIFIED")
		} else {
			color.New(color.FgRed, color.Bold).Fprintln(w, "UNKNOWN")
		}
		for _, m := range res.Matches {
			fmt.Fprint(w, "  Match   : ")
			fmt.Fprintln(w, m)
		}
		return nil
	},
}
