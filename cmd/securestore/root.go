package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/securestore/securestore/internal/config"
	"github.com/securestore/securestore/pkg/audit"
	"github.com/securestore/securestore/pkg/crypto"
	"github.com/securestore/securestore/pkg/vault"
)

// Global flags
var (
	storePath    string
	passwordFlag string
	keyFilePath  string
)

var (
	cfg         *config.Config
	auditLogger *audit.Logger
)

var rootCmd = &cobra.Command{
	Use:   "securestore",
	Short: "securestore manages encrypted secrets files",
	Long: `SecureStore keeps named secrets in a single encrypted text file that is
safe to commit to version control. Values are individually encrypted, the
file diffs cleanly, and the key never touches the repository.`,
	SilenceUsage: true,
	// PersistentPreRunE loads the configuration and resolves flag
	// defaults before any subcommand runs.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("store") && cfg.Store != "" {
			storePath = cfg.Store
		}
		if !cmd.Flags().Changed("keyfile") && cfg.KeyFile != "" {
			keyFilePath = cfg.KeyFile
		}
		if cfg.Audit {
			auditLogger = audit.NewLogger(auditPath())
		}
		return nil
	},
}

func init() {
	rootCmd.Version = version
	rootCmd.Flags().BoolP("version", "v", false, "version for securestore")

	rootCmd.PersistentFlags().StringVarP(&storePath, "store", "s", config.DefaultStorePath, "Path to the secrets store file")
	rootCmd.PersistentFlags().StringVarP(&passwordFlag, "password", "p", "", "Password (prompted when omitted)")
	rootCmd.PersistentFlags().StringVarP(&keyFilePath, "keyfile", "k", "", "Path to a key file (instead of a password)")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(exportKeyCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(mcpServerCmd)
}

// loadPolicy maps the CLI configuration to the library policy. The CLI
// default upgrades older vaults; the library alone stays strict.
func loadPolicy() vault.Policy {
	if cfg != nil && !cfg.UpgradeAllowed() {
		return vault.PolicyStrict
	}
	return vault.PolicyUpgrade
}

// openStore loads the store at --store and unlocks it with the key file
// or password.
func openStore() (*vault.Store, error) {
	s, err := vault.LoadFile(storePath, vault.WithPolicy(loadPolicy()))
	if err != nil {
		return nil, err
	}
	if err := unlockStore(s); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// loadStoreOnly loads the store without key material, for operations
// that touch names only.
func loadStoreOnly() (*vault.Store, error) {
	return vault.LoadFile(storePath, vault.WithPolicy(loadPolicy()))
}

// unlockStore loads key material into the store, preferring the key
// file over a password.
func unlockStore(s *vault.Store) error {
	if keyFilePath != "" {
		if err := s.LoadKeyFromFile(keyFilePath); err != nil {
			return err
		}
	} else {
		password, err := obtainPassword("Enter password: ")
		if err != nil {
			return err
		}
		err = s.LoadKeyFromPassword(string(password))
		crypto.SecureWipe(password)
		if err != nil {
			return err
		}
	}
	initAudit(s)
	return nil
}

// obtainPassword returns the --password value or prompts on the
// terminal with echo disabled. Prompts go to stderr so stdout stays
// clean for secret values.
func obtainPassword(prompt string) ([]byte, error) {
	if passwordFlag != "" {
		return []byte(passwordFlag), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		return password, nil
	}

	// Piped stdin fallback.
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return []byte(line), nil
}

// initAudit hands the unlocked store's key material to the audit logger.
func initAudit(s *vault.Store) {
	if auditLogger == nil {
		return
	}
	buf, err := s.ExportKeyBuffer()
	if err != nil {
		return
	}
	defer buf.Destroy()
	if err := auditLogger.SetHMACKey(buf.Bytes()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize audit log: %v\n", err)
		auditLogger = nil
	}
}

// auditPath resolves the audit log directory.
func auditPath() string {
	if cfg != nil && cfg.AuditPath != "" {
		return cfg.AuditPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".securestore", "audit")
	}
	return filepath.Join(home, ".securestore", "audit")
}

// logAudit records one CLI operation when audit logging is enabled.
func logAudit(op, name string, opErr error) {
	if auditLogger == nil {
		return
	}
	var err error
	if opErr != nil {
		err = auditLogger.LogError(op, name, errorCode(opErr), opErr.Error())
	} else {
		err = auditLogger.LogSuccess(op, name)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write audit log: %v\n", err)
	}
}

// errorCode maps library errors to stable audit codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, vault.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, vault.ErrTamperedCiphertext):
		return "TAMPERED"
	case errors.Is(err, vault.ErrNoKeyLoaded):
		return "NO_KEY"
	case errors.Is(err, vault.ErrInvalidKeyFile):
		return "BAD_KEYFILE"
	default:
		return "ERROR"
	}
}
