package notify

import "sync"

// Fake records sent messages for tests and mock mode.
type Fake struct {
	mu       sync.Mutex
	Messages map[Role][]string
	SendErr  error
}

func NewFake() *Fake {
	return &Fake{Messages: make(map[Role][]string)}
}

func (f *Fake) Send(role Role, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Messages[role] = append(f.Messages[role], message)
	return nil
}

// Sent returns a copy of the messages delivered to a role.
func (f *Fake) Sent(role Role) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Messages[role]...)
}
