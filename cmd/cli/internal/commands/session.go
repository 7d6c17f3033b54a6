package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfeidau/backoffice/internal/client"
	"github.com/wolfeidau/backoffice/internal/models"
	"github.com/wolfeidau/backoffice/internal/session"
)

// LoginCmd authenticates and stores the session.
type LoginCmd struct {
	Email    string `help:"Account email" required:""`
	Password string `help:"Account password (prompted when empty)" env:"BACKOFFICE_PASSWORD"`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.Close()

	password := c.Password
	if password == "" {
		fmt.Fprint(globals.stdout(), "Password: ")
		_, _ = fmt.Scanln(&password)
	}

	sess, err := a.withDevices().sessions.Login(ctx, models.Credentials{Email: c.Email, Password: password})
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			return fmt.Errorf("login rejected, check your email and password: %w", err)
		}
		return fmt.Errorf("login failed: %w", err)
	}

	out := globals.stdout()
	fmt.Fprintf(out, "Logged in as %s.\n", sess.User.Email)
	if sess.ActiveTenantID != "" {
		fmt.Fprintf(out, "Active restaurant: %s\n", sess.ActiveTenantID)
	}

	return nil
}

// LogoutCmd unregisters the device and clears the stored session.
type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.Close()

	a.withDevices().sessions.Bootstrap(ctx)
	a.sessions.Logout(ctx)

	fmt.Fprintln(globals.stdout(), "Logged out.")
	return nil
}

// WhoamiCmd prints the stored session without contacting the backend.
type WhoamiCmd struct{}

func (c *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	var roles []string
	if sess.User.IsSuperuser {
		roles = append(roles, "superuser")
	}
	if sess.User.IsStaff {
		roles = append(roles, "staff")
	}
	if sess.User.IsManager {
		roles = append(roles, "manager")
	}

	headers := a.client.Headers()
	_, hasAuth := headers[client.HeaderAuthorization]

	out := globals.stdout()
	fmt.Fprintf(out, "User ID:        %d\n", sess.User.ID)
	fmt.Fprintf(out, "Email:          %s\n", sess.User.Email)
	fmt.Fprintf(out, "Roles:          %s\n", strings.Join(roles, ", "))
	fmt.Fprintf(out, "Restaurant:     %s\n", sess.ActiveTenantID)
	fmt.Fprintf(out, "Token expires:  %s\n", formatTime(sess.AccessTokenExpiry))
	fmt.Fprintf(out, "Refresh token:  %v\n", sess.HasRefreshToken())
	fmt.Fprintf(out, "Authorization:  %v\n", hasAuth)
	if sess.Language != "" {
		fmt.Fprintf(out, "Language:       %s\n", sess.Language)
	}

	return nil
}

// RefreshCmd exchanges the refresh token for a new access token.
type RefreshCmd struct{}

func (c *RefreshCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.requireSession(ctx); err != nil {
		return err
	}

	if err := a.sessions.RefreshAccessToken(ctx); err != nil {
		return fmt.Errorf("refresh failed, you have been logged out: %w", err)
	}

	fmt.Fprintf(globals.stdout(), "Access token refreshed, expires %s.\n", formatTime(a.sessions.Session().AccessTokenExpiry))
	return nil
}
