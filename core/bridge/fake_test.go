package bridge

import (
	"sync"

	"github.com/kilianp07/skybridge/core/link"
)

type recvResult struct {
	msg link.Message
	err error
}

// fakeLink scripts Recv results and records sent directives.
type fakeLink struct {
	mu      sync.Mutex
	script  []recvResult
	sent    []link.Directive
	sendErr error
	recvs   int
}

func (f *fakeLink) Recv() (link.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recvs++
	if len(f.script) == 0 {
		return nil, nil
	}
	r := f.script[0]
	f.script = f.script[1:]
	return r.msg, r.err
}

func (f *fakeLink) Send(d link.Directive) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, d)
	return nil
}

func (f *fakeLink) directives() []link.Directive {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]link.Directive(nil), f.sent...)
}

func (f *fakeLink) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.script)
}
