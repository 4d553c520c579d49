package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/securestore/securestore/internal/cli"
	"github.com/securestore/securestore/pkg/audit"
)

var (
	getAll    bool
	getFormat string
)

func init() {
	getCmd.Flags().BoolVarP(&getAll, "all", "a", false, "Print every secret")
	getCmd.Flags().StringVarP(&getFormat, "output-format", "t", "json", "Output format for --all: json or text")
}

// getCmd retrieves secret values
var getCmd = &cobra.Command{
	Use:   "get [NAME]",
	Short: "Gets a secret value",
	Long: `Gets a secret value.

  securestore get NAME        # prints only the value, newline-terminated
  securestore get -a          # prints every secret (json or text)

NAME may be a glob pattern when it contains *, ? or [.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !getAll && len(args) == 0 {
			return fmt.Errorf("a NAME argument is required without --all")
		}
		if getFormat != "json" && getFormat != "text" {
			return fmt.Errorf("invalid output format %q (use 'json' or 'text')", getFormat)
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if getAll {
			err := printAll(s.Keys(), s)
			logAudit(audit.OpSecretList, "", err)
			return err
		}

		name := args[0]
		names := []string{name}
		if containsGlob(name) {
			names, err = cli.ExpandPattern(name, s.Keys())
			if err != nil {
				return err
			}
		}

		if len(names) > 1 {
			return printAll(names, s)
		}

		value, err := s.Get(names[0])
		logAudit(audit.OpSecretGet, names[0], err)
		if err != nil {
			return err
		}

		// Only the decrypted value reaches stdout.
		fmt.Println(value)
		return nil
	},
}

// printAll prints a name→value listing in the selected output format.
func printAll(names []string, s secretReader) error {
	values := make(map[string]string, len(names))
	for _, name := range names {
		value, err := s.Get(name)
		if err != nil {
			return err
		}
		values[name] = value
	}

	if getFormat == "text" {
		for _, name := range names {
			fmt.Printf("%s=%s\n", name, values[name])
		}
		return nil
	}

	// json: stable key order comes from json.Marshal's map sorting.
	out, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	os.Stdout.Write(append(out, '\n'))
	return nil
}

// secretReader is the slice of the store API printAll needs.
type secretReader interface {
	Get(name string) (string, error)
}

func containsGlob(s string) bool {
	for _, r := range s {
		if r == '*' || r == '?' || r == '[' {
			return true
		}
	}
	return false
}
