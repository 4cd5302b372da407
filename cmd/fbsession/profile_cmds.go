package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-social-session/failure"
	"github.com/jrsteele09/go-social-session/internal/utils"
	"github.com/jrsteele09/go-social-session/profile"
)

func newProfileCmd(opts *rootOptions, factory appFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage your profile on the backend API",
	}
	cmd.AddCommand(
		newProfileMeCmd(opts, factory),
		newProfileGetCmd(opts, factory),
		newProfileUpdateCmd(opts, factory),
		newProfileDeleteImageCmd(opts, factory),
		newProfileDeleteAccountCmd(opts, factory),
	)
	return cmd
}

// withProfile runs fn with a profile client holding a live token and turns
// failures into user-facing messages.
func withProfile(cmd *cobra.Command, opts *rootOptions, factory appFactory, fn func(a *app) error) error {
	return withApp(cmd, opts, factory, func(a *app) error {
		if err := a.authorize(cmd.Context()); err != nil {
			return errors.New(failure.Message(err))
		}
		if err := fn(a); err != nil {
			a.logger.Debug().Err(err).Msg("profile request failed")
			return errors.New(failure.Message(err))
		}
		return nil
	})
}

func newProfileMeCmd(opts *rootOptions, factory appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withProfile(cmd, opts, factory, func(a *app) error {
				user, err := a.profile.Me(cmd.Context())
				if err != nil {
					return err
				}
				return printProfile(cmd.OutOrStdout(), user, opts.jsonOutput)
			})
		},
	}
}

func newProfileGetCmd(opts *rootOptions, factory appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "get <user-id>",
		Short: "Show another user's profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProfile(cmd, opts, factory, func(a *app) error {
				user, err := a.profile.GetUser(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printProfile(cmd.OutOrStdout(), user, opts.jsonOutput)
			})
		},
	}
}

func newProfileUpdateCmd(opts *rootOptions, factory appFactory) *cobra.Command {
	var name, username, bio, email, image string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change profile fields or upload a new picture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := profile.UpdateRequest{}
			flags := cmd.Flags()
			if flags.Changed("name") {
				req.Name = utils.Ptr(name)
			}
			if flags.Changed("username") {
				req.Username = utils.Ptr(username)
			}
			if flags.Changed("bio") {
				req.Bio = utils.Ptr(bio)
			}
			if flags.Changed("email") {
				req.Email = utils.Ptr(email)
			}
			if image != "" {
				f, err := os.Open(image)
				if err != nil {
					return errors.Wrap(err, "opening image")
				}
				defer f.Close()
				req.Image = &profile.Image{Filename: image, Body: f}
			}

			return withProfile(cmd, opts, factory, func(a *app) error {
				user, err := a.profile.UpdateProfile(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printProfile(cmd.OutOrStdout(), user, opts.jsonOutput)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&bio, "bio", "", "Bio")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&image, "image", "", "Path of a picture to upload")
	return cmd
}

func newProfileDeleteImageCmd(opts *rootOptions, factory appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-image",
		Short: "Remove your profile picture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withProfile(cmd, opts, factory, func(a *app) error {
				user, err := a.profile.DeleteProfileImage(cmd.Context())
				if err != nil {
					return err
				}
				return printProfile(cmd.OutOrStdout(), user, opts.jsonOutput)
			})
		},
	}
}

func newProfileDeleteAccountCmd(opts *rootOptions, factory appFactory) *cobra.Command {
	var (
		req profile.DeleteAccountRequest
		yes bool
	)
	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Delete your account and log out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to delete the account without --yes")
			}
			return withProfile(cmd, opts, factory, func(a *app) error {
				if err := a.profile.DeleteAccount(cmd.Context(), req); err != nil {
					return err
				}
				if err := a.manager.Logout(cmd.Context()); err != nil {
					a.logger.Warn().Err(err).Msg("logout after account deletion failed")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Account deleted")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Password, "password", "", "Account password, if the backend asks for one")
	cmd.Flags().StringVar(&req.GoogleIDToken, "google-id-token", "", "Fresh Google id token, if the account is linked to Google")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the deletion")
	return cmd
}

func printProfile(w io.Writer, u *profile.User, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(w, u)
	}
	fmt.Fprintf(w, "ID:       %s\n", u.ID)
	fmt.Fprintf(w, "Name:     %s\n", u.Name)
	if u.Username != "" {
		fmt.Fprintf(w, "Username: %s\n", u.Username)
	}
	fmt.Fprintf(w, "Email:    %s (verified: %t)\n", u.Email, u.EmailVerified)
	if bio := utils.Value(u.Bio); bio != "" {
		fmt.Fprintf(w, "Bio:      %s\n", bio)
	}
	if picture := utils.Value(u.ProfileImage); picture != "" {
		fmt.Fprintf(w, "Picture:  %s\n", picture)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
