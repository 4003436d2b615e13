package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/ragchat/internal/client"
	"github.com/spf13/cobra"
)

var (
	authUsername string
	loginNext    string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the chat service",
	Long: `Sign in with a username and password. The token is kept in the state
directory and reused until it expires or you log out.

Examples:
  ragchat login
  ragchat login -u alice
  ragchat login --next "history list"`,
	Annotations: map[string]string{routeAnnotation: "guest"},
	Args:        cobra.NoArgs,
	RunE:        runLogin,
}

var registerCmd = &cobra.Command{
	Use:         "register",
	Short:       "Create an account and sign in",
	Annotations: map[string]string{routeAnnotation: "guest"},
	Args:        cobra.NoArgs,
	RunE:        runRegister,
}

var logoutCmd = &cobra.Command{
	Use:         "logout",
	Short:       "Sign out and forget this terminal's conversation",
	Annotations: map[string]string{routeAnnotation: "auth"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := ctl.Auth.Identity()
		ctl.Logout()
		fmt.Printf("Signed out %s.\n", name)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if name, ok := ctl.Auth.Identity(); ok {
			fmt.Println(name)
			return nil
		}
		fmt.Println(theme.hintStyle().Render("Not signed in."))
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the chat service is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ctl.Client.Health(cmd.Context()); err != nil {
			return fmt.Errorf("%s is not reachable: %w", ctl.Client.BaseURL(), err)
		}
		fmt.Printf("%s is up.\n", ctl.Client.BaseURL())
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&authUsername, "username", "u", "", "username (prompted if empty)")
	loginCmd.Flags().StringVar(&loginNext, "next", "", "command to run after signing in")
	registerCmd.Flags().StringVarP(&authUsername, "username", "u", "", "username (prompted if empty)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	if err := promptLogin(cmd.Context(), authUsername); err != nil {
		return err
	}
	if loginNext == "" {
		return nil
	}
	return runNext(cmd, loginNext)
}

func runRegister(cmd *cobra.Command, args []string) error {
	username, password, err := promptCredentials(authUsername)
	if err != nil {
		return err
	}
	if err := ctl.Auth.Register(cmd.Context(), username, password); err != nil {
		return fmt.Errorf("register: %s", describeError(err))
	}
	fmt.Printf("Welcome, %s.\n", username)
	return nil
}

// promptLogin asks for credentials and signs in.
func promptLogin(ctx context.Context, username string) error {
	username, password, err := promptCredentials(username)
	if err != nil {
		return err
	}
	if err := ctl.Auth.Login(ctx, username, password); err != nil {
		return fmt.Errorf("login: %s", describeError(err))
	}
	name, _ := ctl.Auth.Identity()
	fmt.Printf("Signed in as %s.\n", name)
	return nil
}

func promptCredentials(username string) (string, string, error) {
	var err error
	if username == "" {
		if username, err = readLine("Username: "); err != nil {
			return "", "", fmt.Errorf("read username: %w", err)
		}
	}
	password, err := readPassword("Password: ")
	if err != nil {
		return "", "", err
	}
	return username, password, nil
}

// runNext resumes the command a login was redirected from.
func runNext(cmd *cobra.Command, next string) error {
	root := cmd.Root()
	target, rest, err := root.Find(strings.Fields(next))
	if err != nil || target == root || target.RunE == nil {
		return fmt.Errorf("unknown command after login: %q", next)
	}
	if target.Annotations[routeAnnotation] == "guest" {
		return nil
	}
	if err := target.ParseFlags(rest); err != nil {
		return fmt.Errorf("parse %q: %w", next, err)
	}
	target.SetContext(cmd.Context())
	return target.RunE(target, target.Flags().Args())
}

// describeError turns backend errors into a short message for the user.
func describeError(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Detail != "":
		return apiErr.Detail
	case errors.Is(err, client.ErrUnauthorized):
		return "invalid username or password"
	default:
		return err.Error()
	}
}
