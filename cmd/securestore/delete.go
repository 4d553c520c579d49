package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/securestore/securestore/pkg/audit"
)

// deleteCmd removes a secret
var deleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Deletes a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		removed, err := s.Delete(name)
		logAudit(audit.OpSecretDelete, name, err)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("secret '%s' not found", name)
		}
		if err := s.Save(storePath); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Secret '%s' deleted\n", name)
		return nil
	},
}

// keysCmd lists secret names
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Lists all secret names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Listing names needs no key material; load the store directly.
		s, err := loadStoreOnly()
		if err != nil {
			return err
		}
		defer s.Close()

		names := s.Keys()
		if len(names) == 0 {
			fmt.Fprintln(os.Stderr, "No secrets stored")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}
