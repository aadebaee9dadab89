package dashboard

import "sync"

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type Event string

const (
	EventFetch   Event = "fetch"
	EventResolve Event = "resolve"
	EventFail    Event = "fail"
	EventReset   Event = "reset"
)

// Machine is the per-card request lifecycle.
type Machine struct {
	mu    sync.Mutex
	state Status
}

func NewMachine() *Machine {
	return &Machine{state: StatusIdle}
}

func (m *Machine) Apply(event Event) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = nextStatus(m.state, event)
	return m.state
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func nextStatus(current Status, event Event) Status {
	if event == EventReset {
		return StatusIdle
	}
	switch current {
	case StatusIdle, StatusSuccess, StatusError:
		if event == EventFetch {
			return StatusLoading
		}
	case StatusLoading:
		switch event {
		case EventResolve:
			return StatusSuccess
		case EventFail:
			return StatusError
		}
	}
	return current
}
