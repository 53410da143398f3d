// Package cli builds the cobra command tree exposed by cmd/scout.
package cli

import (
	"github.com/spf13/cobra"
)

// Handlers wires command execution back to the application runner. Each
// field is invoked by the matching cobra command; configPath reflects the
// persistent --config flag at the time the command runs.
type Handlers struct {
	Start   func(cmd *cobra.Command, configPath string) error
	Stop    func(cmd *cobra.Command, configPath string) error
	Cancel  func(cmd *cobra.Command, configPath string) error
	Status  func(cmd *cobra.Command, configPath string) error
	Devices func(cmd *cobra.Command, configPath string) error
	Doctor  func(cmd *cobra.Command, configPath string) error
	Version func(cmd *cobra.Command, configPath string) error
}

// NewRootCommand assembles the scout command tree. binaryName sets Use so
// generated help text matches how the binary is actually invoked.
func NewRootCommand(binaryName string, h Handlers) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           binaryName,
		Short:         "Local-first dictation daemon and control surface",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/scout/config.jsonc)")

	withConfig := func(fn func(cmd *cobra.Command, configPath string) error) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			return fn(cmd, configPath)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start a recording session, or stop the active one if another scout process owns it",
			RunE:  withConfig(h.Start),
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the active recording and commit its transcript",
			RunE:  withConfig(h.Stop),
		},
		&cobra.Command{
			Use:   "cancel",
			Short: "Cancel the active recording and discard its transcript",
			RunE:  withConfig(h.Cancel),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current session state",
			RunE:  withConfig(h.Status),
		},
		&cobra.Command{
			Use:   "devices",
			Short: "List available input devices and their capabilities",
			RunE:  withConfig(h.Devices),
		},
		&cobra.Command{
			Use:   "doctor",
			Short: "Run configuration and environment checks",
			RunE:  withConfig(h.Doctor),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			RunE:  withConfig(h.Version),
		},
	)

	return root
}
