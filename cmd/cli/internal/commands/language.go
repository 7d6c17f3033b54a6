package commands

import (
	"context"
	"fmt"
)

// LanguageCmd stores the UI locale preference.
type LanguageCmd struct {
	Code string `arg:"" help:"Locale code, e.g. en or es"`
}

func (c *LanguageCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.Close()

	a.sessions.Bootstrap(ctx)
	if err := a.sessions.SetLanguage(ctx, c.Code); err != nil {
		return fmt.Errorf("failed to store language: %w", err)
	}

	fmt.Fprintf(globals.stdout(), "Language set to %s.\n", c.Code)
	return nil
}
