package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/securestore/securestore/pkg/audit"
)

// setCmd stores a secret value
var setCmd = &cobra.Command{
	Use:   "set NAME [VALUE]",
	Short: "Sets a secret value",
	Long: `Sets a secret value. Accepts three forms:

  securestore set NAME VALUE
  securestore set NAME=VALUE
  securestore set NAME          # value read from standard input`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, value, err := parseSetArgs(args)
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		err = s.Set(name, value)
		logAudit(audit.OpSecretSet, name, err)
		if err != nil {
			return err
		}
		if err := s.Save(storePath); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Secret '%s' saved\n", name)
		return nil
	},
}

// parseSetArgs resolves the three accepted argument forms.
func parseSetArgs(args []string) (name, value string, err error) {
	if len(args) == 2 {
		return args[0], args[1], nil
	}

	if n, v, ok := strings.Cut(args[0], "="); ok {
		if n == "" {
			return "", "", fmt.Errorf("empty name in %q", args[0])
		}
		return n, v, nil
	}

	// Single NAME argument: read the value from stdin.
	fmt.Fprint(os.Stderr, "Enter secret value (Ctrl+D to finish): ")
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", "", fmt.Errorf("failed to read secret value: %w", err)
	}
	fmt.Fprintln(os.Stderr)

	// Trim one trailing newline for interactive single-line convenience.
	v := strings.TrimSuffix(string(data), "\n")
	v = strings.TrimSuffix(v, "\r")
	return args[0], v, nil
}
