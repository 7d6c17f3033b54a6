package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/wolfeidau/backoffice/internal/models"
	"github.com/wolfeidau/backoffice/internal/notify"
)

// NotificationsCmd reads and manages back-office notifications.
type NotificationsCmd struct {
	Count   NotificationsCountCmd   `cmd:"" help:"Show notification counters"`
	List    NotificationsListCmd    `cmd:"" help:"List notifications"`
	Read    NotificationsReadCmd    `cmd:"" help:"Mark a notification as read"`
	ReadAll NotificationsReadAllCmd `cmd:"" name:"read-all" help:"Mark all notifications as read"`
	Clear   NotificationsClearCmd   `cmd:"" help:"Delete all notifications"`
}

type NotificationsCountCmd struct{}

func (c *NotificationsCountCmd) Run(ctx context.Context, globals *Globals) error {
	return withSession(ctx, globals, func(a *app) error {
		if err := a.hub.FetchCounters(ctx); err != nil {
			return err
		}
		printCounters(globals, a.hub.Counters())
		return nil
	})
}

type NotificationsListCmd struct {
	Page     int  `help:"Page number" default:"1"`
	PageSize int  `help:"Page size" default:"20"`
	Unread   bool `help:"Only unread notifications" xor:"read"`
	Read     bool `help:"Only read notifications" xor:"read"`
}

func (c *NotificationsListCmd) options() notify.ListOptions {
	opts := notify.ListOptions{Page: c.Page, PageSize: c.PageSize}
	switch {
	case c.Unread:
		read := false
		opts.Read = &read
	case c.Read:
		read := true
		opts.Read = &read
	}
	return opts
}

func (c *NotificationsListCmd) Run(ctx context.Context, globals *Globals) error {
	return withSession(ctx, globals, func(a *app) error {
		page, err := a.notifications.List(ctx, c.options())
		if err != nil {
			return err
		}

		if len(page.Results) == 0 {
			fmt.Fprintln(globals.stdout(), "No notifications.")
			return nil
		}

		w := tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tREAD\tRESERVATION\tCREATED\tTITLE")
		for _, n := range page.Results {
			reservation := n.ReservationID
			if reservation == "" {
				reservation = "-"
			}
			fmt.Fprintf(w, "%s\t%v\t%s\t%s\t%s\n", n.ID, n.Read, reservation, formatTime(n.CreatedAt), n.Title)
		}
		w.Flush()

		fmt.Fprintf(globals.stdout(), "\nPage %d, %d notifications in total.\n", c.Page, page.Count)
		return nil
	})
}

type NotificationsReadCmd struct {
	ID string `arg:"" help:"Notification ID"`
}

func (c *NotificationsReadCmd) Run(ctx context.Context, globals *Globals) error {
	return withSession(ctx, globals, func(a *app) error {
		if err := a.hub.MarkRead(ctx, c.ID); err != nil {
			return err
		}
		printCounters(globals, a.hub.Counters())
		return nil
	})
}

type NotificationsReadAllCmd struct{}

func (c *NotificationsReadAllCmd) Run(ctx context.Context, globals *Globals) error {
	return withSession(ctx, globals, func(a *app) error {
		if err := a.hub.MarkAllRead(ctx); err != nil {
			return err
		}
		printCounters(globals, a.hub.Counters())
		return nil
	})
}

type NotificationsClearCmd struct {
	Force bool `help:"Skip confirmation" default:"false"`
}

func (c *NotificationsClearCmd) Run(ctx context.Context, globals *Globals) error {
	if !c.Force {
		fmt.Fprint(globals.stdout(), "Delete all notifications? [y/N]: ")

		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(globals.stdout(), "Aborted.")
			return nil
		}
	}

	return withSession(ctx, globals, func(a *app) error {
		if err := a.hub.ClearAll(ctx); err != nil {
			return err
		}
		printCounters(globals, a.hub.Counters())
		return nil
	})
}

func withSession(ctx context.Context, globals *Globals, fn func(a *app) error) error {
	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.requireSession(ctx); err != nil {
		return err
	}

	return fn(a)
}

func printCounters(globals *Globals, c models.NotificationCounters) {
	fmt.Fprintf(globals.stdout(), "Unread: %d  Read: %d  Total: %d\n", c.Unread, c.Read, c.Total)
}
