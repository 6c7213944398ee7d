package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/sigclaw/internal/config"
	"github.com/nextlevelbuilder/sigclaw/internal/store"
)

const pairingProvider = "signal"

func pairingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairing",
		Short: "Manage pairing requests and the sender allow-list",
	}
	cmd.AddCommand(pairingListCmd())
	cmd.AddCommand(pairingApproveCmd())
	cmd.AddCommand(pairingRevokeCmd())
	return cmd
}

func pairingListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending pairing requests",
		Run: func(cmd *cobra.Command, args []string) {
			withStores(func(ctx context.Context, stores *store.Stores) error {
				reqs, err := stores.Pairing.List(ctx, pairingProvider)
				if err != nil {
					return err
				}
				if len(reqs) == 0 {
					fmt.Println("No pending pairing requests.")
					return nil
				}
				for _, r := range reqs {
					fmt.Printf("%s  %s  (requested %s)\n", r.Code, r.ID, r.CreatedAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func pairingApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <code>",
		Short: "Approve a pairing request and allow-list the sender",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withStores(func(ctx context.Context, stores *store.Stores) error {
				id, err := stores.Pairing.Approve(ctx, pairingProvider, args[0])
				if err != nil {
					return err
				}
				if err := stores.Allowlist.Add(ctx, pairingProvider, id); err != nil {
					return fmt.Errorf("approved %s but allow-list update failed: %w", id, err)
				}
				fmt.Printf("Approved %s\n", id)
				return nil
			})
		},
	}
}

func pairingRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <sender-id>",
		Short: "Remove a sender from the allow-list and drop any pending request",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withStores(func(ctx context.Context, stores *store.Stores) error {
				id := args[0]
				if err := stores.Allowlist.Remove(ctx, pairingProvider, id); err != nil {
					return err
				}
				if err := stores.Pairing.Delete(ctx, pairingProvider, id); err != nil {
					return err
				}
				fmt.Printf("Revoked %s\n", id)
				return nil
			})
		},
	}
}

// withStores loads config, opens the stores, runs fn, and exits non-zero on
// failure. Shared by all pairing subcommands.
func withStores(fn func(ctx context.Context, stores *store.Stores) error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stores, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open stores: %v\n", err)
		os.Exit(1)
	}
	defer closeStores()

	if err := fn(ctx, stores); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
