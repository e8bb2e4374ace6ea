// Package notify delivers human-readable transaction messages to the buyer
// and the seller. Delivery failures are logged by callers and never block
// the state machine.
package notify

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

type Notifier interface {
	Send(role Role, message string) error
}
