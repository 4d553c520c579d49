package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/securestore/securestore/pkg/audit"
)

// exportKeyCmd writes the working key to a PEM key file
var exportKeyCmd = &cobra.Command{
	Use:   "export-key PATH",
	Short: "Exports the store's key to a PEM key file",
	Long: `Exports the working key to a PEM-armored key file.

The store is unlocked first (with --password or --keyfile), so this also
converts a password-protected store's derived key into a key file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath := args[0]

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		err = s.ExportKey(outPath)
		logAudit(audit.OpKeyExport, "", err)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Key exported to %s\n", outPath)
		fmt.Fprintln(os.Stderr, "Keep this file out of version control.")
		return nil
	},
}
