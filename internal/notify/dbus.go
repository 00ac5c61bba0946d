package notify

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	notifyService   = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications.Notify"

	defaultExpireMs = 5000
)

// DBusNotifier posts desktop notifications over the session bus.
type DBusNotifier struct {
	appName string
	conn    *dbus.Conn
}

// NewDBusNotifier connects to the session bus. Returns an error if there is
// no session bus (headless session); callers should disable notifications.
func NewDBusNotifier(appName string) (*DBusNotifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &DBusNotifier{appName: appName, conn: conn}, nil
}

// Notify posts one notification.
func (n *DBusNotifier) Notify(title, body string, urgency Urgency) error {
	obj := n.conn.Object(notifyService, notifyPath)
	hints := map[string]dbus.Variant{
		"urgency":  dbus.MakeVariant(byte(urgency)),
		"category": dbus.MakeVariant("music"),
	}

	call := obj.Call(notifyInterface, 0,
		n.appName,        // app name
		uint32(0),        // replaces id
		"audio-headphones", // icon
		title,
		body,
		[]string{}, // actions
		hints,
		int32(defaultExpireMs),
	)
	if call.Err != nil {
		return fmt.Errorf("notification call failed: %w", call.Err)
	}
	return nil
}

// Close releases the bus connection.
func (n *DBusNotifier) Close() error {
	return n.conn.Close()
}
