package session

// NavigationKind is how the current browsing context was entered, read from
// the environment's navigation-timing record.
type NavigationKind string

const (
	NavigationNavigate    NavigationKind = "navigate"
	NavigationReload      NavigationKind = "reload"
	NavigationBackForward NavigationKind = "back_forward"
)

// Shell is the browsing-context surface the controller runs against: history
// manipulation, prompts, and navigation. The real environment provides one
// implementation; tests provide fakes. Keeping it injected is what makes the
// controller testable without any ambient globals.
type Shell interface {
	// NavigationKind reports how this context was entered. Used once, at
	// session start, for reload detection.
	NavigationKind() NavigationKind

	// PushHistoryTrap pushes a synthetic history entry so a back press lands
	// on the trap instead of silently leaving the room.
	PushHistoryTrap()

	// Confirm shows a blocking yes/no prompt and reports the choice.
	Confirm(prompt string) bool

	// Alert shows a notice the user must acknowledge before continuing.
	Alert(message string)

	// Navigate replaces the current context's location.
	Navigate(url string)

	// OpenWindow spawns a secondary browsing context at url.
	OpenWindow(url string) error
}

// KeyedStore is the short-lived keyed storage used to carry reaction metrics
// across navigations. Downstream screens read the values by convention key
// name; nothing here outlives the session.
type KeyedStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}
