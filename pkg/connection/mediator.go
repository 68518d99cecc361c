package connection

import "github.com/indiproto/indi-go/pkg/model"

// exitWatcher forwards every callback to the wrapped mediator and reports
// session ends to a Manager.
type exitWatcher struct {
	model.Mediator
	manager *Manager
}

// WatchExits wraps inner so that session ends reach m. A nil inner ignores
// all events.
func WatchExits(inner model.Mediator, m *Manager) model.Mediator {
	if inner == nil {
		inner = model.NoopMediator{}
	}
	return &exitWatcher{Mediator: inner, manager: m}
}

func (w *exitWatcher) ServerDisconnected(exitCode int) {
	w.Mediator.ServerDisconnected(exitCode)
	w.manager.NotifyConnectionLost(exitCode)
}
