package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/securestore/securestore/internal/cli"
	"github.com/securestore/securestore/pkg/audit"
	"github.com/securestore/securestore/pkg/crypto"
	"github.com/securestore/securestore/pkg/vault"
)

// createCmd creates a new secrets store
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Creates a new secrets store",
	Long: `Creates a new, empty secrets store at the --store path.

With --keyfile a fresh random key is generated and exported there; the
key path is added to the working copy's ignore file so it is never
committed next to the store. Without --keyfile the key is derived from a
password.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. Refuse to clobber an existing store.
		if _, err := os.Stat(storePath); err == nil {
			return fmt.Errorf("store already exists at %s", storePath)
		}

		s, err := vault.New()
		if err != nil {
			return err
		}
		defer s.Close()

		// 2. Load key material: generated key file, or password.
		if keyFilePath != "" {
			if err := s.GenerateKey(); err != nil {
				return err
			}
			if err := s.ExportKey(keyFilePath); err != nil {
				return fmt.Errorf("failed to write key file: %w", err)
			}
			added, err := cli.EnsureKeyIgnored(keyFilePath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			} else if added {
				fmt.Fprintf(os.Stderr, "Added %s to the VCS ignore file\n", keyFilePath)
			}
		} else {
			password, err := obtainPassword("Enter password: ")
			if err != nil {
				return err
			}
			defer crypto.SecureWipe(password)

			// Confirm only when the password was prompted interactively.
			if passwordFlag == "" {
				confirm, err := obtainPassword("Confirm password: ")
				if err != nil {
					return err
				}
				match := string(password) == string(confirm)
				crypto.SecureWipe(confirm)
				if !match {
					return errors.New("passwords do not match")
				}
			}

			if err := s.LoadKeyFromPassword(string(password)); err != nil {
				return err
			}
		}

		// 3. Save the empty store (this also creates the sentinel).
		if err := s.Save(storePath); err != nil {
			return err
		}

		initAudit(s)
		logAudit(audit.OpStoreCreate, "", nil)

		fmt.Fprintf(os.Stderr, "Created %s\n", storePath)
		return nil
	},
}
