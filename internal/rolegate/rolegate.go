// Package rolegate implements the master/slave role switch of spec.md
// §4.H and §9: "model as a tagged variant Role = Master | Slave... switching
// is a field swap behind a message, not subtype swap." Every component
// that issues metadata writes or outbound signals consults a Gate before
// acting; a Slave consults the same Gate and always takes the neutral
// (cache-only) path.
package rolegate

import "sync/atomic"

// Role is the controller's current leadership stance.
type Role int32

const (
	RoleSlave Role = iota
	RoleMaster
)

func (r Role) String() string {
	if r == RoleMaster {
		return "MASTER"
	}
	return "SLAVE"
}

// Gate holds the current role behind an atomic so every actor observes a
// role switch instantaneously without restarting, per spec.md §4.H:
// "pending promises created under the previous policy are allowed to
// complete but no new side effects are issued under the wrong role."
type Gate struct {
	role atomic.Int32
}

// New returns a Gate starting as Slave, the safe default until an
// election observer reports a win.
func New() *Gate {
	return &Gate{}
}

// IsMaster reports whether the controller should currently run active
// (write + signal) behavior.
func (g *Gate) IsMaster() bool {
	return Role(g.role.Load()) == RoleMaster
}

// Promote switches the gate to Master.
func (g *Gate) Promote() {
	g.role.Store(int32(RoleMaster))
}

// Demote switches the gate to Slave.
func (g *Gate) Demote() {
	g.role.Store(int32(RoleSlave))
}

// Role returns the current role.
func (g *Gate) Role() Role {
	return Role(g.role.Load())
}
