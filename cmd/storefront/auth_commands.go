package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/session"
)

type appFunc func() *app

func loginCommand(get appFunc) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "sign in with email and password",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", EnvVars: []string{"STOREFRONT_PASSWORD"}, Required: true},
		},
		Action: func(c *cli.Context) error {
			user, err := get().sessions.Login(c.Context, c.String("email"), c.String("password"))
			if err != nil {
				return fail(err)
			}
			fmt.Fprintf(c.App.Writer, "signed in as %s\n", user.Email)
			return nil
		},
	}
}

func signupCommand(get appFunc) *cli.Command {
	return &cli.Command{
		Name:  "signup",
		Usage: "create an account and sign in",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Required: true},
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true},
			&cli.StringFlag{Name: "confirm", Usage: "password again", Required: true},
		},
		Action: func(c *cli.Context) error {
			user, err := get().sessions.Signup(c.Context, c.String("name"), c.String("email"), c.String("password"), c.String("confirm"))
			if err != nil {
				return fail(err)
			}
			fmt.Fprintf(c.App.Writer, "welcome, %s\n", user.Name)
			return nil
		},
	}
}

func logoutCommand(get appFunc) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "sign out and forget the stored token",
		Action: func(c *cli.Context) error {
			get().sessions.Logout(c.Context)
			fmt.Fprintln(c.App.Writer, "signed out")
			return nil
		},
	}
}

func whoamiCommand(get appFunc) *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "show the signed-in user",
		Action: func(c *cli.Context) error {
			s := get().sessions.Current()
			if !s.IsAuthenticated() {
				return fail(domain.ErrUnauthenticated)
			}
			return printJSON(c.App.Writer, s.User)
		},
	}
}

func oauthURLCommand(get appFunc) *cli.Command {
	return &cli.Command{
		Name:  "oauth-url",
		Usage: "print the Google sign-in URL",
		Action: func(c *cli.Context) error {
			u, err := get().sessions.GoogleLoginURL()
			if err != nil {
				return fail(err)
			}
			fmt.Fprintln(c.App.Writer, u)
			return nil
		},
	}
}

func oauthCallbackCommand(get appFunc) *cli.Command {
	return &cli.Command{
		Name:      "oauth-callback",
		Usage:     "finish Google sign-in from the URL the browser landed on",
		ArgsUsage: "<callback-url>",
		Action: func(c *cli.Context) error {
			token, err := session.TokenFromCallback(c.Args().First())
			if err != nil {
				return fail(err)
			}
			user, err := get().sessions.RefreshAuth(c.Context, token)
			if err != nil {
				return fail(err)
			}
			fmt.Fprintf(c.App.Writer, "signed in as %s\n", user.Email)
			return nil
		},
	}
}

func verifyCommand(get appFunc) *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "email verification",
		Subcommands: []*cli.Command{
			{
				Name:  "send",
				Usage: "mail a one-time code",
				Action: func(c *cli.Context) error {
					if err := get().sessions.SendVerificationMail(c.Context); err != nil {
						return fail(err)
					}
					fmt.Fprintln(c.App.Writer, "verification code sent")
					return nil
				},
			},
			{
				Name:      "confirm",
				Usage:     "submit the code",
				ArgsUsage: "<code>",
				Action: func(c *cli.Context) error {
					if err := get().sessions.VerifyMail(c.Context, c.Args().First()); err != nil {
						return fail(err)
					}
					fmt.Fprintln(c.App.Writer, "email verified")
					return nil
				},
			},
		},
	}
}

func passwordCommand(get appFunc) *cli.Command {
	return &cli.Command{
		Name:  "password",
		Usage: "forgot, reset or change the password",
		Subcommands: []*cli.Command{
			{
				Name:      "forgot",
				ArgsUsage: "<email>",
				Action: func(c *cli.Context) error {
					if err := get().sessions.ForgotPassword(c.Context, c.Args().First()); err != nil {
						return fail(err)
					}
					fmt.Fprintln(c.App.Writer, "if the account exists, a reset link is on its way")
					return nil
				},
			},
			{
				Name: "reset",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "confirm", Required: true},
				},
				Action: func(c *cli.Context) error {
					err := get().sessions.ResetPassword(c.Context, c.String("token"), c.String("password"), c.String("confirm"))
					if err != nil {
						return fail(err)
					}
					fmt.Fprintln(c.App.Writer, "password reset, sign in again")
					return nil
				},
			},
			{
				Name: "change",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "current", Required: true},
					&cli.StringFlag{Name: "new", Required: true},
					&cli.StringFlag{Name: "confirm", Required: true},
				},
				Action: func(c *cli.Context) error {
					err := get().sessions.ChangePassword(c.Context, c.String("current"), c.String("new"), c.String("confirm"))
					if err != nil {
						return fail(err)
					}
					fmt.Fprintln(c.App.Writer, "password changed")
					return nil
				},
			},
		},
	}
}
