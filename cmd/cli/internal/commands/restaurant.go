package commands

import (
	"context"
	"fmt"
)

// RestaurantCmd manages the active restaurant.
type RestaurantCmd struct {
	Switch RestaurantSwitchCmd `cmd:"" help:"Switch the active restaurant"`
}

// RestaurantSwitchCmd scopes subsequent API calls to another restaurant.
type RestaurantSwitchCmd struct {
	ID string `arg:"" help:"Restaurant ID"`
}

func (c *RestaurantSwitchCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.requireSession(ctx); err != nil {
		return err
	}

	if err := a.sessions.UpdateTenantSelection(ctx, c.ID); err != nil {
		return fmt.Errorf("failed to switch restaurant: %w", err)
	}

	out := globals.stdout()
	fmt.Fprintf(out, "Active restaurant set to %s.\n", c.ID)

	if err := a.hub.FetchCounters(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Unread notifications: %d\n", a.hub.Counters().Unread)

	return nil
}
