package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Audit export flags.
var (
	auditExportFormat string
	auditExportOutput string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditClearCmd)
	auditCmd.AddCommand(auditExportCmd)

	auditExportCmd.Flags().StringVar(&auditExportFormat, "format", "json", "Output format: json, csv")
	auditExportCmd.Flags().StringVarP(&auditExportOutput, "output", "o", "", "Output file path (default: stdout)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		entries, err := logger.List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No audit events recorded")
			return nil
		}
		for _, e := range entries {
			line := fmt.Sprintf("%s %s", e.Timestamp.Local().Format(time.RFC3339), e.Action)
			if e.Details != "" {
				line += " " + e.Details
			}
			fmt.Println(line)
		}
		fmt.Printf("\nTotal: %d events\n", len(entries))
		return nil
	},
}

var auditClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		fmt.Print("This will erase the audit history. Are you sure? [y/N]: ")
		response, err := readLine()
		if err != nil {
			return err
		}
		if response != "y" && response != "Y" {
			fmt.Println("Aborted")
			return nil
		}

		if err := logger.Clear(); err != nil {
			return err
		}
		fmt.Println("Audit log cleared")
		return nil
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the audit log as JSON or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		data, err := logger.Export(auditExportFormat)
		if err != nil {
			return err
		}

		if auditExportOutput == "" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(auditExportOutput, data, 0600); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Audit log exported to %s\n", auditExportOutput)
		return nil
	},
}
