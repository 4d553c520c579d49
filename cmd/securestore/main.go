// Package main provides the securestore CLI application.
package main

import "os"

var version = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already printed the error to stderr.
		os.Exit(1)
	}
}
