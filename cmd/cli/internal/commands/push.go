package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/backoffice/internal/push"
)

// PushCmd inspects push notification registration.
type PushCmd struct {
	Status PushStatusCmd `cmd:"" help:"Show notification permission and device token"`
}

type PushStatusCmd struct {
	Request bool `help:"Prompt for permission when it is not granted"`
}

func (c *PushStatusCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.Close()

	status := a.devices.CheckAndRequestPermission(ctx, c.Request)

	out := globals.stdout()
	fmt.Fprintf(out, "Platform:     %s (os version %d)\n", a.config.Platform, a.config.OSVersion)
	fmt.Fprintf(out, "Permission:   %s\n", status)
	if a.config.PushToken != "" {
		fmt.Fprintf(out, "Device token: %s\n", push.Fingerprint(a.config.PushToken))
	} else {
		fmt.Fprintln(out, "Device token: none configured")
	}

	return nil
}
