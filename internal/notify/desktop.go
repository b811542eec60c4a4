package notify

import (
	"context"

	"github.com/gen2brain/beeep"
)

// Indirection for tests; beeep talks to the session bus or the OS API.
var (
	desktopNotify = func(title, body, icon string) error { return beeep.Notify(title, body, icon) }
	desktopAlert  = func(title, body, icon string) error { return beeep.Alert(title, body, icon) }
)

// Desktop shows notifications through the desktop environment. Critical
// notifications use an alert, which also plays a sound.
type Desktop struct {
	icon string
}

// NewDesktop creates a desktop sink; icon is an optional image path.
func NewDesktop(icon string) *Desktop {
	return &Desktop{icon: icon}
}

func (d *Desktop) Name() string { return "desktop" }

func (d *Desktop) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.Urgency == UrgencyCritical {
		return desktopAlert(n.Title, n.Body, d.icon)
	}
	return desktopNotify(n.Title, n.Body, d.icon)
}
