package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/backoffice/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Login         commands.LoginCmd         `cmd:"" help:"Log in with email and password"`
		Logout        commands.LogoutCmd        `cmd:"" help:"Log out and forget stored credentials"`
		Whoami        commands.WhoamiCmd        `cmd:"" help:"Show the current session"`
		Refresh       commands.RefreshCmd       `cmd:"" help:"Refresh the access token"`
		Restaurant    commands.RestaurantCmd    `cmd:"" help:"Manage the active restaurant"`
		Notifications commands.NotificationsCmd `cmd:"" help:"Read and manage notifications"`
		Push          commands.PushCmd          `cmd:"" help:"Push notification registration"`
		Daemon        commands.DaemonCmd        `cmd:"" help:"Keep the session fresh until interrupted"`
		Language      commands.LanguageCmd      `cmd:"" help:"Set the UI language preference"`
		Config        string                    `help:"Path to the YAML config file" default:"~/.backoffice/config.yaml" type:"path" env:"BACKOFFICE_CONFIG"`
		StoreDir      string                    `help:"Credential store directory (default: ~/.backoffice)" env:"BACKOFFICE_STORE_DIR"`
		Debug         bool                      `help:"Enable debug mode."`
		Version       kong.VersionFlag
	}
)

func main() {
	// .env is optional and only used in development
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			log.Warn().Err(err).Msg("failed to load .env file")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:      cli.Debug,
		Version:    version,
		ConfigPath: cli.Config,
		StoreDir:   cli.StoreDir,
	})
	cmd.FatalIfErrorf(err)
}
