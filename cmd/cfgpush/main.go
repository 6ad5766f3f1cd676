package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cfgpush/internal/app"
	"cfgpush/internal/deploy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// newApp opens a session in the default base directory. The caller must
// defer app.Close().
func newApp(cmd *cobra.Command) (*app.App, error) {
	dirs, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	a, err := app.New(app.Options{Dirs: dirs, Stderr: os.Stderr, Level: level})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "cfgpush",
	Short:        "Deploy config presets to a server over FTP",
	SilenceUsage: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the data directory and default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		dirs := a.Dirs()
		fmt.Printf("Base Dir: %s\n", dirs.Base)
		fmt.Printf("Config:   %s\n", dirs.Config)
		fmt.Printf("Presets:  %s\n", dirs.Presets)
		fmt.Printf("Backups:  %s\n", dirs.Backups)
		fmt.Printf("Logs:     %s\n", dirs.Logs)
		return nil
	},
}

// preset command
var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Inspect presets",
}

var presetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		presets, err := a.Presets()
		if err != nil {
			return err
		}
		if len(presets) == 0 {
			fmt.Printf("No presets in %s.\n", a.Dirs().Presets)
			return nil
		}
		for _, p := range presets {
			fmt.Println(p)
		}
		return nil
	},
}

var presetShowCmd = &cobra.Command{
	Use:   "show PRESET",
	Short: "List the files of a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		files, err := a.PresetFiles(args[0])
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show what a deployment of a preset would do",
	RunE: func(cmd *cobra.Command, args []string) error {
		preset, _ := cmd.Flags().GetString("preset")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, line := range a.Preview(preset) {
			fmt.Println(line)
		}
		return nil
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test the connection to a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, _ := cmd.Flags().GetString("profile")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		dir, err := a.TestConnection(cmd.Context(), profile)
		if err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}
		fmt.Printf("Connection OK. Remote directory: %s\n", dir)
		return nil
	},
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a preset to a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		preset, _ := cmd.Flags().GetString("preset")
		profile, _ := cmd.Flags().GetString("profile")
		yes, _ := cmd.Flags().GetBool("yes")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var confirm deploy.Confirmer = app.NewPrompter(os.Stdin, os.Stdout)
		if yes {
			confirm = deploy.AutoConfirm{}
		}

		d, err := a.Deploy(cmd.Context(), app.DeployOptions{
			Profile: profile,
			Preset:  preset,
			Confirm: confirm,
			Observe: printEvent,
		})
		if d != nil {
			printSummary(cmd.OutOrStdout(), d)
		}
		if err != nil {
			var perr *deploy.PreflightError
			if errors.As(err, &perr) {
				for _, m := range perr.Missing {
					fmt.Printf("  missing: %s\n", m)
				}
				for _, inv := range perr.Invalid {
					fmt.Printf("  invalid: %s\n", inv)
				}
			}
			return fmt.Errorf("deployment failed: %w", err)
		}
		return nil
	},
}

func printEvent(ev deploy.Event) {
	if ev.Index == 0 {
		return
	}
	if ev.Err != nil {
		fmt.Printf("[%d/%d] %s: %s: %v\n", ev.Index, ev.Total, ev.Item, ev.Message, ev.Err)
		return
	}
	fmt.Printf("[%d/%d] %s\n", ev.Index, ev.Total, ev.Message)
}

func printSummary(w io.Writer, d *deploy.Deployment) {
	switch d.Outcome {
	case deploy.OutcomeDeclined:
		fmt.Fprintln(w, "Deployment cancelled.")
	case deploy.OutcomeDone:
		fmt.Fprintf(w, "Deployed %d file(s) from %s to %s.\n", d.Uploaded(), d.Preset, d.Profile)
		for _, r := range d.Items {
			if r.BackupPath != "" {
				fmt.Fprintf(w, "  backup: %s\n", r.BackupPath)
			}
		}
	default:
		fmt.Fprintf(w, "Deployment aborted after %d of %d upload(s).\n", d.Uploaded(), d.Total)
	}
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View deployment history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		profile, _ := cmd.Flags().GetString("profile")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		deployments, err := a.History(cmd.Context(), profile, limit)
		if err != nil {
			return err
		}
		if len(deployments) == 0 {
			fmt.Println("No deployments recorded.")
			return nil
		}

		for _, d := range deployments {
			duration := d.FinishedAt.Sub(d.StartedAt).Truncate(time.Millisecond)
			fmt.Printf("%s  %s  %-12s %-16s %-9s %d/%d  %s\n",
				d.ID[:min(8, len(d.ID))],
				d.StartedAt.Local().Format("2006-01-02 15:04:05"),
				d.Profile,
				d.Preset,
				d.Outcome,
				d.Uploaded,
				d.Items,
				duration,
			)
			if d.Error != "" {
				fmt.Printf("          %s\n", d.Error)
			}
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show the items of one deployment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.FindDeployment(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s  %s -> %s  %s\n", d.ID, d.StartedAt.Local().Format("2006-01-02 15:04:05"), d.Preset, d.Profile, d.Outcome)
		if d.Error != "" {
			fmt.Printf("error: %s\n", d.Error)
		}
		items, err := a.HistoryItems(cmd.Context(), d.ID)
		if err != nil {
			return err
		}
		for _, it := range items {
			status := "uploaded"
			if !it.Uploaded {
				status = "not uploaded"
			}
			fmt.Printf("%d. %s: %s -> %s (%s)\n", it.Position, it.Name, it.LocalPath, it.RemotePath, status)
			if it.BackupPath != "" {
				fmt.Printf("   backup: %s\n", it.BackupPath)
			}
			if it.BackupError != "" {
				fmt.Printf("   backup error: %s\n", it.BackupError)
			}
			if it.UploadError != "" {
				fmt.Printf("   upload error: %s\n", it.UploadError)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output")

	presetCmd.AddCommand(presetListCmd)
	presetCmd.AddCommand(presetShowCmd)

	previewCmd.Flags().String("preset", "", "Preset to preview")
	testCmd.Flags().String("profile", "", "Profile to test (default: active profile)")

	deployCmd.Flags().String("preset", "", "Preset to deploy")
	deployCmd.Flags().String("profile", "", "Profile to deploy to (default: active profile)")
	deployCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	deployCmd.MarkFlagRequired("preset")

	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of deployments to show")
	historyCmd.Flags().String("profile", "", "Only show deployments to this profile")
	historyCmd.AddCommand(historyShowCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(mappingCmd)
	rootCmd.AddCommand(presetCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(backupCmd)
}
