package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Create an account, sign in and out",
}

var authPasswordStdin bool

func init() {
	authCmd.PersistentFlags().BoolVar(&authPasswordStdin, "password-stdin", false, "Read the password from stdin without prompting")
	authCmd.AddCommand(
		&cobra.Command{Use: "signup <email>", Short: "Create an account and sign in", Args: cobra.ExactArgs(1), RunE: runSignUp},
		&cobra.Command{Use: "signin <email>", Short: "Sign in", Args: cobra.ExactArgs(1), RunE: runSignIn},
		&cobra.Command{Use: "signout", Short: "Sign out", Args: cobra.NoArgs, RunE: runSignOut},
		&cobra.Command{Use: "whoami", Short: "Show the signed-in user and their apps", Args: cobra.NoArgs, RunE: runWhoAmI},
	)
}

// readPassword reads one line from stdin. The prompt goes to stderr so
// piped input stays clean.
func readPassword() (string, error) {
	if !authPasswordStdin {
		fmt.Fprint(os.Stderr, "Password: ")
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runSignUp(cmd *cobra.Command, args []string) error {
	a, err := rt.Auth()
	if err != nil {
		return err
	}
	password, err := readPassword()
	if err != nil {
		return err
	}
	u, err := a.SignUp(cmd.Context(), args[0], password)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed up as %s (%s)\n", u.Email, u.ID)
	return nil
}

func runSignIn(cmd *cobra.Command, args []string) error {
	a, err := rt.Auth()
	if err != nil {
		return err
	}
	password, err := readPassword()
	if err != nil {
		return err
	}
	u, err := a.SignIn(cmd.Context(), args[0], password)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", u.Email)
	return nil
}

func runSignOut(cmd *cobra.Command, _ []string) error {
	a, err := rt.Auth()
	if err != nil {
		return err
	}
	if err := a.SignOut(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return nil
}

func runWhoAmI(cmd *cobra.Command, _ []string) error {
	s, err := signedIn(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) role=%s apps=%s\n",
		s.user.Email, s.user.ID, s.perm.Role, strings.Join(s.perm.Apps, ","))
	return nil
}
