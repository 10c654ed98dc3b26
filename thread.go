package renderq

import (
	"fmt"

	"github.com/petermattis/goid"
)

// ThreadID identifies the goroutine an object is bound to.
// The zero value means "not bound".
type ThreadID int64

// CurrentThread returns the id of the calling goroutine.
func CurrentThread() ThreadID {
	return ThreadID(goid.Get())
}

// String implements fmt.Stringer.
func (id ThreadID) String() string {
	if id == 0 {
		return "unbound"
	}
	return fmt.Sprintf("goroutine-%d", int64(id))
}

// threadGuard checks that calls come from the goroutine that created the
// guarded object. A guard with allowAll set accepts every caller.
type threadGuard struct {
	owner    ThreadID
	allowAll bool
}

func newThreadGuard(allowAll bool) threadGuard {
	return threadGuard{owner: CurrentThread(), allowAll: allowAll}
}

// check returns ErrThreadViolation wrapped with op when the caller is not
// the owner.
func (g threadGuard) check(op string) error {
	if g.allowAll {
		return nil
	}
	if cur := CurrentThread(); cur != g.owner {
		return fmt.Errorf("renderq: %s: %w (owner %s, caller %s)", op, ErrThreadViolation, g.owner, cur)
	}
	return nil
}
