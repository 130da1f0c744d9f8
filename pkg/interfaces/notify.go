package interfaces

// NotificationVariant selects the visual treatment of a notification.
type NotificationVariant string

const (
	VariantDefault     NotificationVariant = "default"
	VariantDestructive NotificationVariant = "destructive"
)

// Notification is one piece of user-facing feedback (created/joined/left a
// class, connection trouble).
type Notification struct {
	Title       string
	Description string
	Variant     NotificationVariant
}

// Notifier delivers user-facing feedback.
// ARCHITECTURAL DISCOVERY: Sink failures must never block or fail core
// logic, so Notify returns nothing; implementations swallow their own errors
type Notifier interface {
	Notify(n Notification)
}
