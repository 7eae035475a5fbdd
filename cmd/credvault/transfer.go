package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Export flags.
var (
	exportFormat    string
	exportEncrypted bool
	exportOutput    string
)

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv")
	exportCmd.Flags().BoolVar(&exportEncrypted, "encrypted", false, "Encrypt the exported payload (json only)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: stdout)")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all credentials",
	Long: `Exports every credential. The default JSON output contains plaintext
passwords; pass --encrypted to seal it with the current master key, or
--format csv for a spreadsheet (always plaintext).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		data, err := v.Export(exportFormat, exportEncrypted)
		if err != nil {
			return err
		}

		if exportOutput == "" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(exportOutput, data, 0600); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		if !exportEncrypted {
			fmt.Fprintln(cmd.ErrOrStderr(), "Warning: the export contains plaintext passwords")
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", exportOutput)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import credentials from an exported file",
	Long: `Imports credentials from a JSON export. Credentials matching an existing
name and username are skipped. Encrypted exports can only be imported into a
vault using the same master password.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read import file: %w", err)
		}

		imported, skipped, err := v.Import(data)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d credentials (%d duplicates skipped)\n", imported, skipped)
		return nil
	},
}
