package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var identifier, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a username or email",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := current.manager.Login(cmd.Context(), identifier, password)
			if err != nil {
				return err
			}
			fmt.Printf("Logged in as %s\n", user.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&identifier, "user", "u", "", "username or email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	return cmd
}

func newRegisterCmd() *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := current.manager.Register(cmd.Context(), username, email, password)
			if err != nil {
				return err
			}
			if !outcome.Authenticated {
				fmt.Println("Registration successful. Please log in.")
				return nil
			}
			fmt.Printf("Registered and logged in as %s\n", username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			current.manager.Logout()
			fmt.Println("Logged out")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.requireSession(cmd.Context()); err != nil {
				return err
			}
			user := current.manager.CurrentUser()
			fmt.Printf("%s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}
}

func newThemeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "theme [light|dark]",
		Short:     "Show or set the UI theme preference",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"light", "dark"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				theme := current.store.Theme()
				if theme == "" {
					theme = "light"
				}
				fmt.Println(theme)
				return nil
			}
			return current.store.SetTheme(args[0])
		},
	}
}
