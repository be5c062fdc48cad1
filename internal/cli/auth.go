package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pcbuild/internal/service"
)

func (a *app) loginCommand() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save credentials locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.interactiveLogin(cmd.Context(), username)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	return cmd
}

// interactiveLogin 交互式登录，用户名为空时提示输入
func (a *app) interactiveLogin(ctx context.Context, username string) error {
	fmt.Fprintln(a.out, "🔐 Log in to", a.cfg.Settings().Server.URL)

	if username == "" {
		prompt := "Username: "
		if last := a.cfg.Settings().Account.Username; last != "" {
			prompt = fmt.Sprintf("Username [%s]: ", last)
		}
		input, err := a.readLine(prompt)
		if err != nil {
			return err
		}
		if input == "" {
			input = a.cfg.Settings().Account.Username
		}
		username = input
	}
	if username == "" {
		return errors.New("username is required")
	}

	password, err := a.readSecret("Password: ")
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("password is required")
	}

	reqCtx, cancel := a.requestContext(ctx)
	defer cancel()
	resp, err := a.api().Login(reqCtx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if resp.User != nil {
		username = resp.User.Username
	}
	if err := a.cfg.SaveAuth(username, resp.AccessToken, resp.RefreshToken); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "✅ Logged in as %s\n\n", username)
	return nil
}

func (a *app) registerCommand() *cobra.Command {
	var username, email string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if username == "" {
				if username, err = a.readLine("Username: "); err != nil {
					return err
				}
			}
			password, err := a.readSecret("Password (min 6 characters): ")
			if err != nil {
				return err
			}
			confirm, err := a.readSecret("Repeat password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return errors.New("passwords do not match")
			}

			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			resp, err := a.api().Register(ctx, &service.RegisterRequest{
				Username: strings.TrimSpace(username),
				Password: password,
				Email:    strings.TrimSpace(email),
			})
			if err != nil {
				return fmt.Errorf("register failed: %w", err)
			}
			fmt.Fprintf(a.out, "✅ Account %s created, run 'pcbuild login' to start\n", resp.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVar(&email, "email", "", "optional email address")
	return cmd
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear local credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.LoggedIn() {
				fmt.Fprintln(a.out, "Not logged in")
				return nil
			}

			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			// 服务器不可达时仍然清除本地凭证
			if err := a.api().Logout(ctx); err != nil {
				fmt.Fprintf(a.errOut, "⚠️  server logout failed: %v\n", err)
			}
			if err := a.cfg.ClearAuth(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "✓ Logged out and cleared local credentials")
			return nil
		},
	}
}

func (a *app) passwordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the account password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			current, err := a.readSecret("Current password: ")
			if err != nil {
				return err
			}
			next, err := a.readSecret("New password: ")
			if err != nil {
				return err
			}

			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			if err := a.api().ChangePassword(ctx, current, next); err != nil {
				return explain(err)
			}
			fmt.Fprintln(a.out, "✓ Password changed")
			return nil
		},
	}
}

func (a *app) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server and login status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.cfg.Settings()
			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()

			fmt.Fprintf(a.out, "Server:   %s\n", s.Server.URL)
			api := a.api()
			if health, err := api.Health(ctx); err != nil {
				fmt.Fprintf(a.out, "Health:   unreachable (%v)\n", err)
			} else {
				fmt.Fprintf(a.out, "Health:   %s (database %s, cache %s)\n",
					health.Status, health.Checks["database"], health.Checks["cache"])
			}

			if !a.cfg.LoggedIn() {
				fmt.Fprintln(a.out, "Account:  not logged in, run 'pcbuild login'")
				return nil
			}
			user, err := api.Profile(ctx)
			if err != nil {
				fmt.Fprintf(a.out, "Account:  %s (%v)\n", s.Account.Username, explain(err))
				return nil
			}
			fmt.Fprintf(a.out, "Account:  %s\n", user.Username)
			a.printActivity(user)
			if s.Chat.LastConversation != "" {
				fmt.Fprintf(a.out, "Last conversation: %s\n", s.Chat.LastConversation)
			}
			return nil
		},
	}
}

func (a *app) profileCommand() *cobra.Command {
	var email, budget string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update the account profile",
		Long: `Show the account profile, or update it with --email and --budget.
The default budget is used by new conversations; --budget 0 clears it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()

			req := &service.UpdateProfileRequest{}
			if cmd.Flags().Changed("email") {
				req.Email = &email
			}
			if cmd.Flags().Changed("budget") {
				req.DefaultBudget = &budget
			}

			api := a.api()
			var user *service.ProfileView
			var err error
			if req.Email == nil && req.DefaultBudget == nil {
				user, err = api.Profile(ctx)
			} else {
				user, err = api.UpdateProfile(ctx, req)
			}
			if err != nil {
				return explain(err)
			}

			fmt.Fprintf(a.out, "Account:  %s\n", user.Username)
			if user.Email != nil {
				fmt.Fprintf(a.out, "Email:    %s\n", *user.Email)
			}
			a.printActivity(user)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address, empty to remove")
	cmd.Flags().StringVar(&budget, "budget", "", `default budget for new conversations, e.g. "5000" or "R$ 5 mil"`)
	return cmd
}

func (a *app) printActivity(user *service.ProfileView) {
	if user.DefaultBudget != nil {
		fmt.Fprintf(a.out, "Budget:   %s (default for new conversations)\n", formatPrice(*user.DefaultBudget))
	}
	act := user.Activity
	fmt.Fprintf(a.out, "Activity: %d conversations (%d open), %d builds\n",
		act.Conversations, act.OpenConversations, act.Builds)
	if act.LastBuildAt != nil {
		fmt.Fprintf(a.out, "Last build: %s\n", act.LastBuildAt.Local().Format("2006-01-02 15:04"))
	}
}
