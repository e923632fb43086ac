package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/Strob0t/CrewForge/internal/config"
	"github.com/Strob0t/CrewForge/internal/secrets"
)

// runSetKey seals a provider API key into the vault. The key is read from
// the terminal without echo, never from argv.
func runSetKey(args []string) error {
	fs := flag.NewFlagSet("set-key", flag.ContinueOnError)
	provider := fs.String("provider", "litellm", "provider name the key belongs to")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Secrets.MasterKey == "" {
		master, err := secrets.NewMasterKey()
		if err != nil {
			return fmt.Errorf("generate master key: %w", err)
		}
		fmt.Fprintf(os.Stderr, "no master key configured; generated one.\nexport CREWFORGE_MASTER_KEY=%s\n", master)
		cfg.Secrets.MasterKey = master
	}

	vault, err := secrets.Open(cfg.Secrets.KeyFile, cfg.Secrets.MasterKey)
	if err != nil {
		return fmt.Errorf("open vault: %w", err)
	}

	fmt.Fprintf(os.Stderr, "API key for %s: ", *provider)
	key, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}
	if len(key) == 0 {
		return fmt.Errorf("empty key")
	}

	if err := vault.Set(*provider, string(key)); err != nil {
		return fmt.Errorf("seal key: %w", err)
	}
	fmt.Fprintf(os.Stderr, "sealed key for %s into %s\n", *provider, cfg.Secrets.KeyFile)
	return nil
}
