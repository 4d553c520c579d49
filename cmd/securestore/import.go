package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/securestore/securestore/pkg/audit"
	"github.com/securestore/securestore/pkg/importer"
)

var importFormat string

func init() {
	importCmd.Flags().StringVar(&importFormat, "format", "", "Input format: dotenv or json (detected when omitted)")
}

// importCmd bulk-loads secrets from a dotenv or JSON file
var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Imports secrets from a dotenv or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}

		source := importer.Source(importFormat)
		if importFormat == "" {
			source = importer.DetectSource(data)
		}
		result, err := importer.Parse(data, source)
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		for _, secret := range result.Secrets {
			if err := s.Set(secret.Name, secret.Value); err != nil {
				logAudit(audit.OpStoreImport, secret.Name, err)
				return fmt.Errorf("failed to import '%s': %w", secret.Name, err)
			}
		}
		if err := s.Save(storePath); err != nil {
			return err
		}
		logAudit(audit.OpStoreImport, "", nil)

		fmt.Fprintf(os.Stderr, "Imported %d secrets\n", len(result.Secrets))
		for _, skipped := range result.Skipped {
			fmt.Fprintf(os.Stderr, "skipped %q: %s\n", skipped.OriginalName, skipped.Reason)
		}
		return nil
	},
}
