package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cfgpush/internal/encryption"
)

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage backup encryption",
}

var backupKeygenCmd = &cobra.Command{
	Use:   "keygen IDENTITY_FILE",
	Short: "Create an age key pair and encrypt new backups to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, recipient, err := encryption.GenerateIdentity()
		if err != nil {
			return err
		}

		f, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			return fmt.Errorf("creating identity file: %w", err)
		}
		if _, err := fmt.Fprintf(f, "# public key: %s\n%s\n", recipient, identity); err != nil {
			f.Close()
			return fmt.Errorf("writing identity file: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("writing identity file: %w", err)
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.SetBackupRecipient(recipient); err != nil {
			return err
		}

		fmt.Printf("Identity written to %s. Keep it safe: backups cannot be read without it.\n", args[0])
		fmt.Printf("Recipient: %s\n", recipient)
		return nil
	},
}

var backupDecryptCmd = &cobra.Command{
	Use:   "decrypt FILE",
	Short: "Decrypt an encrypted backup snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identityPath, _ := cmd.Flags().GetString("identity")
		output, _ := cmd.Flags().GetString("output")

		identities, err := os.ReadFile(identityPath)
		if err != nil {
			return fmt.Errorf("reading identity file: %w", err)
		}

		in, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer in.Close()

		if output == "" {
			output = strings.TrimSuffix(args[0], ".age")
			if output == args[0] {
				output = "-"
			}
		}

		if output == "-" {
			return encryption.Decrypt(in, os.Stdout, identities)
		}

		out, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		if err := encryption.Decrypt(in, out, identities); err != nil {
			out.Close()
			os.Remove(output)
			return err
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("closing output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Decrypted to %s\n", output)
		return nil
	},
}

func init() {
	backupDecryptCmd.Flags().StringP("identity", "i", "", "age identity file")
	backupDecryptCmd.Flags().StringP("output", "o", "", `Output file ("-" for stdout; default: FILE without .age)`)
	backupDecryptCmd.MarkFlagRequired("identity")

	backupCmd.AddCommand(backupKeygenCmd)
	backupCmd.AddCommand(backupDecryptCmd)
}
