package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var auditLimit int

func init() {
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
}

// auditCmd is the parent command for audit operations
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

// requireAudit unlocks the store so the audit chain key is available.
func requireAudit() error {
	if auditLogger == nil {
		return errors.New("audit logging is not enabled (set 'audit: true' in ~/.securestore.yaml)")
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	s.Close()
	return nil
}

// auditListCmd lists audit log entries
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAudit(); err != nil {
			return err
		}

		events, err := auditLogger.ListEvents(auditLimit, time.Time{})
		if err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		for _, event := range events {
			line := fmt.Sprintf("%s %s %s", event.Timestamp, event.Operation, event.Result)
			if event.KeyHMAC != "" {
				hash := event.KeyHMAC
				if len(hash) > 16 {
					hash = hash[:16] + "..."
				}
				line += fmt.Sprintf(" key:%s", hash)
			}
			if event.Error != nil {
				line += fmt.Sprintf(" error:%s", event.Error.Code)
			}
			fmt.Println(line)
		}
		fmt.Printf("\nTotal: %d events\n", len(events))
		return nil
	},
}

// auditVerifyCmd verifies the audit log HMAC chain
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log HMAC chain integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAudit(); err != nil {
			return err
		}

		result, err := auditLogger.Verify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}

		if !result.Valid {
			fmt.Println("Audit log verification FAILED")
			for _, e := range result.Errors {
				fmt.Printf("  - %s\n", e)
			}
			return errors.New("audit log integrity check failed")
		}
		fmt.Printf("Audit log verified: %d records, chain intact\n", result.RecordsTotal)
		return nil
	},
}
