package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"peertrust/internal/domain"
	"peertrust/internal/loader"
	"peertrust/internal/service"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Load connected peers and trust records from a YAML or JSON seed",
	Long: `Import a seed file into the configured trust store. The connected-peer
list is replaced only when the seed lists peers. Trust records overwrite the
stored record of the same peer.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export [FILE]",
	Short: "Write connected peers and their trust records as a seed",
	Long: `Export the connected peers and their trust records. Records of other
peers can be added with --peer. Without FILE the seed is written to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

var (
	seedFormat  string
	exportPeers []string
)

func init() {
	importCmd.Flags().StringVarP(&seedFormat, "format", "f", "", "seed format: yaml or json (default from extension)")
	exportCmd.Flags().StringVarP(&seedFormat, "format", "f", "", "seed format: yaml or json (default from extension, yaml on stdout)")
	exportCmd.Flags().StringSliceVarP(&exportPeers, "peer", "p", nil, "also export the trust record of this peer id")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	seed, err := loader.LoadFile(args[0], seedFormat)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open trust store: %w", err)
	}
	defer store.Close()

	svc, err := newTrustService(cfg, store, service.NewEventBus())
	if err != nil {
		return err
	}

	res, err := loader.Apply(ctx, svc, seed)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d peers and %d trust records from %s\n", res.Peers, res.Records, args[0])
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open trust store: %w", err)
	}
	defer store.Close()

	extra := make([]domain.PeerID, len(exportPeers))
	for i, p := range exportPeers {
		extra[i] = domain.PeerID(p)
	}
	seed, err := loader.Snapshot(ctx, store, extra)
	if err != nil {
		return err
	}

	if len(args) == 0 || args[0] == "-" {
		format := seedFormat
		if format == "" {
			format = "yaml"
		}
		return loader.Export(seed, cmd.OutOrStdout(), format)
	}

	if err := loader.SaveFile(args[0], seedFormat, seed); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported %d peers and %d trust records to %s\n", len(seed.Peers), len(seed.Trust), args[0])
	return nil
}
