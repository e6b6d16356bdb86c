package syncer

// Notifier surfaces sync outcomes to the user. Every recovered failure
// produces exactly one Error call; informational messages are gated by the
// caller's announce flag so silent background polling does not spam.
type Notifier interface {
	Info(email, message string)
	Error(email, message string)
}

// NullNotifier is a no-op notifier.
type NullNotifier struct{}

func (NullNotifier) Info(email, message string)  {}
func (NullNotifier) Error(email, message string) {}
