package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	hookrelay "github.com/goliatone/go-hookrelay"
	"github.com/goliatone/go-hookrelay/config"
	"github.com/goliatone/go-hookrelay/core"
	relayquery "github.com/goliatone/go-hookrelay/query"
	"github.com/goliatone/go-hookrelay/webhooks"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "hookrelay",
		Short:         "Relay source-control webhooks to chat channels",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (.yaml, .yml or .json)")

	root.AddCommand(
		newServeCmd(flags),
		newCheckConfigCmd(flags),
		newClassifyCmd(flags),
		newDispatchesCmd(flags),
	)
	return root
}

func loadConfig(ctx context.Context, flags *rootFlags) (config.AppConfig, error) {
	return config.NewLoader(flags.configPath).Load(ctx)
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			app, err := BuildApp(ctx, cfg, flags.configPath, withLogOutput(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer app.Close()

			listener, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("hookrelay: listen %s: %w", cfg.Server.Addr, err)
			}
			return app.Serve(ctx, listener)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func newCheckConfigCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config and print the effective values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context(), flags)
			if err != nil {
				return err
			}
			out, err := config.Encode(cfg)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if _, err := w.Write(out); err != nil {
				return err
			}
			fmt.Fprintf(w, "# config ok: %d sink(s), providers %s\n", cfg.SinkCount(), strings.Join(cfg.Webhook.Providers, ", "))
			return nil
		},
	}
}

type classifyOutput struct {
	Outcome      string   `yaml:"outcome"`
	Kind         string   `yaml:"kind"`
	Actor        string   `yaml:"actor"`
	Repository   string   `yaml:"repository"`
	Ref          string   `yaml:"ref"`
	Destinations []string `yaml:"destinations"`
	Message      string   `yaml:"message"`
}

func newClassifyCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [payload.json|-]",
		Short: "Show how a webhook payload would be classified and routed, without sending it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, flags)
			if err != nil {
				return err
			}
			source := "-"
			if len(args) == 1 {
				source = args[0]
			}
			body, err := readPayload(cmd.InOrStdin(), source)
			if err != nil {
				return err
			}
			payload, err := webhooks.DecodePayload(body)
			if err != nil {
				return err
			}

			relay, err := hookrelay.NewRelay(cfg.RelayConfig(), hookrelay.WithNotifier(core.DiscardNotifier{}))
			if err != nil {
				return err
			}
			facade, err := hookrelay.NewFacade(relay)
			if err != nil {
				return err
			}
			result, err := facade.Queries().ClassifyEvent.Query(ctx, relayquery.ClassifyEventMessage{Payload: payload})
			if err != nil {
				return err
			}
			return yaml.NewEncoder(cmd.OutOrStdout()).Encode(classifyOutput{
				Outcome:      string(result.Outcome),
				Kind:         string(result.Kind),
				Actor:        result.Actor,
				Repository:   result.Repository,
				Ref:          result.Ref,
				Destinations: result.Destinations.Strings(),
				Message:      result.Message,
			})
		},
	}
}

func readPayload(stdin io.Reader, source string) ([]byte, error) {
	if source == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(source)
}

func newDispatchesCmd(flags *rootFlags) *cobra.Command {
	var (
		channel    string
		repository string
		limit      int
		offset     int
	)
	cmd := &cobra.Command{
		Use:   "dispatches",
		Short: "List the dispatch audit trail from the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, flags)
			if err != nil {
				return err
			}
			if !cfg.Store.Persistent() {
				return fmt.Errorf("hookrelay: dispatches needs a persistent store, driver is %q", cfg.Store.Driver)
			}
			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.close()

			records, err := relayquery.NewListDispatchesQuery(st.ledger).Query(ctx, relayquery.ListDispatchesMessage{
				Filter: core.DispatchFilter{
					Channel:    core.Channel(strings.TrimSpace(channel)),
					Repository: repository,
					Limit:      limit,
					Offset:     offset,
				},
			})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, record := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					record.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
					record.Status,
					record.Sink,
					record.Channel,
					record.Kind,
					record.Repository,
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "filter by channel (common or personal)")
	cmd.Flags().StringVar(&repository, "repository", "", "filter by repository name")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}
