package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cfgpush/internal/app"
	"cfgpush/internal/config"
)

// profile command
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage server profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		p := a.Profiles()
		if len(p.Profiles) == 0 {
			fmt.Println("No profiles configured.")
			return nil
		}
		for _, pr := range p.Profiles {
			marker := " "
			if pr.Name == p.Active {
				marker = "*"
			}
			tls := ""
			if pr.TLS {
				tls = " tls"
			}
			fmt.Printf("%s %-16s %s@%s:%d%s  root=%s\n", marker, pr.Name, pr.Username, pr.Host, pr.Port, tls, pr.Root)
		}
		return nil
	},
}

var profileAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		p := config.Profile{Name: args[0], Port: config.DefaultPort, Root: "/"}
		if err := applyProfileFlags(cmd, &p); err != nil {
			return err
		}
		if err := a.AddProfile(p); err != nil {
			return err
		}
		fmt.Printf("Added profile %s\n", p.Name)
		return nil
	},
}

var profileEditCmd = &cobra.Command{
	Use:   "edit NAME",
	Short: "Change a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		p, ok := a.Profiles().Get(args[0])
		if !ok {
			return fmt.Errorf("profile %q not found", args[0])
		}
		if err := applyProfileFlags(cmd, &p); err != nil {
			return err
		}
		return a.UpdateProfile(args[0], p)
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.RemoveProfile(args[0])
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use NAME",
	Short: "Make a profile active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.UseProfile(args[0]); err != nil {
			return err
		}
		fmt.Printf("Active profile: %s\n", args[0])
		return nil
	},
}

// applyProfileFlags copies the flags the user set onto p. --ask-password
// reads the password from the terminal without echo.
func applyProfileFlags(cmd *cobra.Command, p *config.Profile) error {
	f := cmd.Flags()
	if f.Changed("rename") {
		p.Name, _ = f.GetString("rename")
	}
	if f.Changed("host") {
		p.Host, _ = f.GetString("host")
	}
	if f.Changed("port") {
		p.Port, _ = f.GetInt("port")
	}
	if f.Changed("user") {
		p.Username, _ = f.GetString("user")
	}
	if f.Changed("password") {
		p.Password, _ = f.GetString("password")
	}
	if f.Changed("tls") {
		p.TLS, _ = f.GetBool("tls")
	}
	if f.Changed("tls-skip-verify") {
		p.TLSSkipVerify, _ = f.GetBool("tls-skip-verify")
	}
	if f.Changed("root") {
		p.Root, _ = f.GetString("root")
	}
	if ask, _ := f.GetBool("ask-password"); ask {
		pw, err := app.NewPrompter(os.Stdin, os.Stderr).Password("Password: ")
		if err != nil {
			return err
		}
		p.Password = pw
	}
	return nil
}

func addProfileFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("host", "", "Server host name or address")
	f.Int("port", config.DefaultPort, "FTP control port")
	f.String("user", "", "Login user name")
	f.String("password", "", "Login password")
	f.Bool("ask-password", false, "Prompt for the password")
	f.Bool("tls", false, "Use explicit FTP over TLS")
	f.Bool("tls-skip-verify", false, "Do not verify the server certificate")
	f.String("root", "/", "Remote root directory")
}

// mapping command
var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Manage file mappings",
}

var mappingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mappings in deployment order",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		mappings := a.Mappings().Mappings
		if len(mappings) == 0 {
			fmt.Println("No mappings configured.")
			return nil
		}
		for i, m := range mappings {
			flags := ""
			if !m.Enabled {
				flags += " [disabled]"
			}
			if m.Backup {
				flags += " [backup]"
			}
			fmt.Printf("%d. %s: %s -> %s%s\n", i+1, m.Name, m.LocalPath, m.RemotePath, flags)
		}
		return nil
	},
}

var mappingAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		m := config.Mapping{Name: args[0], Enabled: true, Backup: true}
		applyMappingFlags(cmd, &m)
		if err := a.AddMapping(m); err != nil {
			return err
		}
		fmt.Printf("Added mapping %s\n", m.Name)
		return nil
	},
}

var mappingEditCmd = &cobra.Command{
	Use:   "edit NAME",
	Short: "Change a mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		m, ok := a.Mappings().Get(args[0])
		if !ok {
			return fmt.Errorf("mapping %q not found", args[0])
		}
		applyMappingFlags(cmd, &m)
		return a.UpdateMapping(args[0], m)
	},
}

var mappingRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.RemoveMapping(args[0])
	},
}

func newMappingToggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: use + " a mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.SetMappingEnabled(args[0], enabled)
		},
	}
}

func applyMappingFlags(cmd *cobra.Command, m *config.Mapping) {
	f := cmd.Flags()
	if f.Changed("rename") {
		m.Name, _ = f.GetString("rename")
	}
	if f.Changed("local") {
		m.LocalPath, _ = f.GetString("local")
	}
	if f.Changed("remote") {
		m.RemotePath, _ = f.GetString("remote")
	}
	if f.Changed("backup") {
		m.Backup, _ = f.GetBool("backup")
	}
}

func addMappingFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("local", "", "File path relative to the preset directory")
	f.String("remote", "", "Destination path relative to the profile root")
	f.Bool("backup", true, "Back up the remote file before overwriting it")
}

func init() {
	addProfileFlags(profileAddCmd)
	addProfileFlags(profileEditCmd)
	profileEditCmd.Flags().String("rename", "", "New profile name")

	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileEditCmd)
	profileCmd.AddCommand(profileRemoveCmd)
	profileCmd.AddCommand(profileUseCmd)

	addMappingFlags(mappingAddCmd)
	addMappingFlags(mappingEditCmd)
	mappingEditCmd.Flags().String("rename", "", "New mapping name")
	mappingAddCmd.MarkFlagRequired("local")
	mappingAddCmd.MarkFlagRequired("remote")

	mappingCmd.AddCommand(mappingListCmd)
	mappingCmd.AddCommand(mappingAddCmd)
	mappingCmd.AddCommand(mappingEditCmd)
	mappingCmd.AddCommand(mappingRemoveCmd)
	mappingCmd.AddCommand(newMappingToggleCmd("enable", true))
	mappingCmd.AddCommand(newMappingToggleCmd("disable", false))
}
