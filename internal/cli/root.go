// Package cli provides the command-line interface for ragchat.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/raphaelgruber/ragchat/internal/chat"
	"github.com/raphaelgruber/ragchat/internal/config"
	"github.com/raphaelgruber/ragchat/internal/guard"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and controller
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
	ctl      *chat.Controller
)

// routeAnnotation marks the access requirement of a command ("auth", "guest").
const routeAnnotation = "route"

// errAlreadySignedIn stops a guest-only command when a user is signed in.
var errAlreadySignedIn = errors.New("already signed in")

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ragchat",
	Short: "Terminal client for the RAG chat service",
	Long: `Ragchat talks to a retrieval-augmented chat backend from the terminal.

Conversations are saved on the server as you chat and can be reopened,
listed, and deleted. Each terminal keeps track of the conversation it
has open, so running ragchat again in the same shell resumes it.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		cfg = config.Load()

		logger, closeLog = config.SetupLogger(cfg.LogFile, cfg.LogLevel, config.StderrLevel(verbose))
		slog.SetDefault(logger)
		setupMarkdown()

		ctl = chat.New(cfg, logger)
		registerRoutes(ctl.Guard, cmd.Root())

		return checkRoute(cmd.Context(), cmd)
	},
}

// routeName is the command path without the program name, e.g. "history show".
func routeName(cmd *cobra.Command) string {
	return strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name()+" ")
}

// registerRoutes copies the route annotation of every command into the guard.
func registerRoutes(g *guard.Guard, cmd *cobra.Command) {
	for _, sub := range cmd.Commands() {
		g.Register(routeName(sub), guard.ParseRequirement(sub.Annotations[routeAnnotation]))
		registerRoutes(g, sub)
	}
}

// checkRoute runs the guard for cmd. An auth route hit while signed out
// goes through the login prompt when a terminal is attached, then carries
// on with the original command.
func checkRoute(ctx context.Context, cmd *cobra.Command) error {
	route := routeName(cmd)
	d := ctl.Guard.Check(ctx, route)
	if d.Allow {
		return nil
	}

	switch d.RedirectTo {
	case chat.RouteLogin:
		if !stdinIsTerminal() {
			return fmt.Errorf("not signed in: run 'ragchat login --next %q' first", d.Next)
		}
		fmt.Println(theme.hintStyle().Render("Sign in to continue."))
		if err := promptLogin(ctx, ""); err != nil {
			return err
		}
		if !ctl.Guard.Check(ctx, route).Allow {
			return fmt.Errorf("not signed in")
		}
		return nil
	default:
		name, _ := ctl.Auth.Identity()
		fmt.Printf("Already signed in as %s. Use 'ragchat %s' to start chatting.\n", name, d.RedirectTo)
		return errAlreadySignedIn
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return execute(context.Background(), os.Args[1:])
}

func execute(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	// cobra skips post-run hooks when a command fails.
	defer shutdownLogger()
	err := rootCmd.ExecuteContext(ctx)
	if errors.Is(err, errAlreadySignedIn) {
		return nil
	}
	return err
}

func shutdownLogger() {
	if closeLog == nil {
		return
	}
	if err := closeLog(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
	}
	closeLog = nil
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(newCmd)
}
