// chatlog prints recent chat log entries with their sealed prompts opened.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"bedrockchat/internal/config"
	"bedrockchat/internal/crypto"
	"bedrockchat/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:          "chatlog",
		Short:        "Print recent chat log entries with decrypted prompts",
		Long:         "Reads DB_DSN and the MASTER_KEY_* variables the gateway uses and prints one JSON object per entry, newest first.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.DB.DSN == "" {
				return errors.New("DB_DSN is not set")
			}

			ctx := cmd.Context()
			store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, false)
			if err != nil {
				return err
			}
			defer store.Close()

			var sealer *crypto.Sealer
			if cfg.Crypto.Enabled() {
				sealer, err = crypto.NewSealer(cfg.Crypto.CurrentKeyID, cfg.Crypto.Keys)
				if err != nil {
					return fmt.Errorf("init sealer: %w", err)
				}
			}
			return writeEntries(ctx, cmd.OutOrStdout(), store, sealer, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to print (max 200)")
	return cmd
}

type lister interface {
	ListRecentChatLogs(ctx context.Context, limit int) ([]storage.ChatLogEntry, error)
}

type openedEntry struct {
	storage.ChatLogEntry
	Prompt      string `json:"prompt,omitempty"`
	PromptError string `json:"prompt_error,omitempty"`
}

func writeEntries(ctx context.Context, w io.Writer, l lister, sealer *crypto.Sealer, limit int) error {
	entries, err := l.ListRecentChatLogs(ctx, limit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	for _, e := range entries {
		out := openedEntry{ChatLogEntry: e}
		switch {
		case e.EncPrompt == nil:
		case sealer == nil:
			out.PromptError = "no master key configured"
		default:
			plain, err := sealer.Open(*e.EncPrompt)
			if err != nil {
				out.PromptError = err.Error()
			} else {
				out.Prompt = plain
			}
		}
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("write entry %d: %w", e.ID, err)
		}
	}
	return nil
}
