package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/credvault/credvault/internal/config"
	"github.com/credvault/credvault/pkg/audit"
	"github.com/credvault/credvault/pkg/security"
	"github.com/credvault/credvault/pkg/store"
	"github.com/credvault/credvault/pkg/vault"
)

var (
	flagVaultDir string

	cfg    *config.Config
	st     *store.Store
	logger *audit.Logger
	v      *vault.Vault
)

var rootCmd = &cobra.Command{
	Use:   "credvault",
	Short: "credvault is a local, encrypted credential vault",
	Long: `A local password manager. Credentials are encrypted with a key derived
from your master password and never leave this machine.`,
	SilenceUsage: true,
	// PersistentPreRunE opens the store and binds the vault before any
	// subcommand runs.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configDir())
		if err != nil {
			return err
		}
		if flagVaultDir != "" {
			cfg.VaultPath = flagVaultDir
		}

		st, err = store.Open(cfg.VaultPath)
		if err != nil {
			return fmt.Errorf("failed to open vault storage: %w", err)
		}
		logger = audit.NewLogger(st, cfg.AuditMaxEntries)
		v, err = vault.Open(st, logger, time.Duration(cfg.AutoLockMinutes)*time.Minute)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if v != nil {
			_ = v.Lock()
		}
		if st != nil {
			st.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagVaultDir, "vault", "", "Vault directory (default: ~/.credvault)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(passwordCmd)
}

// configDir is where the optional config file lives. The --vault flag moves
// the data, not the config.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home + "/.credvault"
}

// initCmd sets up a new vault with a master password.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		if v.State() != vault.StateUninitialized {
			return fmt.Errorf("vault already initialized at %s", cfg.VaultPath)
		}

		fmt.Println("Initializing new vault...")
		password, err := readPassword("Enter master password: ")
		if err != nil {
			return err
		}

		result := security.ValidateMasterPassword(password)
		if !result.Valid {
			if len(result.Warnings) > 0 {
				return fmt.Errorf("password rejected: %s", result.Warnings[0])
			}
			return fmt.Errorf("password rejected by strength policy")
		}
		fmt.Printf("Password strength: %s\n", result.Strength)
		for _, w := range result.Warnings {
			fmt.Printf("Warning: %s\n", w)
		}

		confirm, err := readPassword("Confirm master password: ")
		if err != nil {
			return err
		}

		if err := v.Setup(password, confirm); err != nil {
			return err
		}
		fmt.Printf("Vault initialized at %s\n", cfg.VaultPath)
		return nil
	},
}

// lockCmd exists mostly for symmetry; each CLI invocation locks on exit
// anyway, but an explicit lock leaves an audit trace.
var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := v.Lock(); err != nil {
			return err
		}
		fmt.Println("Vault locked")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault state",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Vault: %s\n", cfg.VaultPath)
		fmt.Printf("State: %s\n", v.State())
		return nil
	},
}

// passwordCmd groups master password operations.
var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Master password operations",
}

var passwordChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the master password, re-encrypting all credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		current, err := readPassword("Enter current master password: ")
		if err != nil {
			return err
		}
		if err := v.Unlock(current); err != nil {
			return err
		}

		next, err := readPassword("Enter new master password: ")
		if err != nil {
			return err
		}
		confirm, err := readPassword("Confirm new master password: ")
		if err != nil {
			return err
		}

		if err := v.ChangeMasterPassword(current, next, confirm); err != nil {
			return err
		}
		fmt.Println("Master password changed")
		return nil
	},
}

func init() {
	passwordCmd.AddCommand(passwordChangeCmd)
}

// ensureUnlocked prompts for the master password when the vault is locked.
func ensureUnlocked() error {
	switch v.State() {
	case vault.StateUninitialized:
		return fmt.Errorf("vault not initialized, run 'credvault init' first")
	case vault.StateUnlocked:
		return nil
	}

	password, err := readPassword("Enter master password: ")
	if err != nil {
		return err
	}
	return v.Unlock(password)
}

// readPassword reads a password without echo when stdin is a terminal,
// falling back to line input for piped use.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(int(syscall.Stdin)) {
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return readLine()
}

// readLine reads one line from stdin, trimming the trailing newline.
func readLine() (string, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}
