package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"stagebridge/pkg/ident"
	"stagebridge/pkg/watch"
)

var (
	serverURL string
	chain     string
	apiKey    string
	bearer    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "stagectl",
		Short: "Operator CLI for the stage bridge",
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8787", "bridge base URL")
	rootCmd.PersistentFlags().StringVar(&chain, "chain", "", "chain to address (primary/secondary or an alias)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("ORACLE_API_KEY"), "static API key for writes")
	rootCmd.PersistentFlags().StringVar(&bearer, "token", "", "bearer token for writes")

	rootCmd.AddCommand(hashIDCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(infoCmd())
	rootCmd.AddCommand(setStageCmd())
	rootCmd.AddCommand(setNoteCmd())
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func hashIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-id [id]...",
		Short: "Print the normalized id and ledger key for each element id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range args {
				if strings.TrimSpace(raw) == "" {
					return fmt.Errorf("empty element id")
				}
				fmt.Printf("%s -> %s\n", ident.Normalize(raw), ident.HashID(raw).Hex())
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-chain connectivity and identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := getJSON("/status", nil)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [id]",
		Short: "Fetch the aggregated entity info",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := getJSON("/info/"+url.PathEscape(ident.Normalize(args[0])), map[string]string{"chain": chain})
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func setStageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-stage [id] [stage]",
		Short: "Write a stage value (authenticated)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := strconv.Atoi(args[1])
			if err != nil || stage < 0 || stage > 255 {
				return fmt.Errorf("stage must be an integer 0..255")
			}
			out, err := postJSON("/set-stage", map[string]any{
				"chain": chain, "elementId": args[0], "stage": stage,
			})
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func setNoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-note [id] [note]",
		Short: "Write a note (authenticated)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := postJSON("/set-note", map[string]any{
				"chain": chain, "elementId": args[0], "note": args[1],
			})
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

type cliSource struct{ elems []watch.Element }

func (s cliSource) Elements() []watch.Element { return s.elems }

type cliElement struct{ id string }

func (e cliElement) ElementID() string { return e.id }

func watchCmd() *cobra.Command {
	var interval int
	cmd := &cobra.Command{
		Use:   "watch [id]...",
		Short: "Poll the bridge and print stage transitions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			elems := make([]watch.Element, 0, len(args))
			for _, id := range args {
				elems = append(elems, cliElement{id: id})
			}
			w := watch.New(watch.Options{
				Bridge:   watch.NewClient(serverURL, chain),
				Source:   cliSource{elems},
				Interval: time.Duration(interval) * time.Millisecond,
			})
			green := color.New(color.FgGreen)
			yellow := color.New(color.FgYellow)
			sub := w.Subscribe(func(id string, stage int) {
				if stage > 0 {
					green.Printf("%s -> stage %d\n", id, stage)
				} else {
					yellow.Printf("%s -> stage %d\n", id, stage)
				}
			})
			defer sub.Cancel()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := w.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			w.Stop()
			return nil
		},
	}
	cmd.Flags().IntVar(&interval, "interval", 2000, "poll interval in milliseconds")
	return cmd
}

func getJSON(path string, query map[string]string) (map[string]any, error) {
	u := strings.TrimRight(serverURL, "/") + path
	q := url.Values{}
	for k, v := range query {
		if v != "" {
			q.Set(k, v)
		}
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	resp, err := http.Get(u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeResponse(resp)
}

func postJSON(path string, body map[string]any) (map[string]any, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(serverURL, "/")+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeResponse(resp)
}

func decodeResponse(resp *http.Response) (map[string]any, error) {
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := out["error"].(string)
		if msg == "" {
			msg = resp.Status
		}
		return out, fmt.Errorf("bridge: %s", msg)
	}
	return out, nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
