package access

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Principal identifies a caller of the administrative surface.
type Principal string

// Capability is a permission recognised by the oracle control plane.
type Capability uint8

const (
	// CapAdmin manages grants and can hand itself over.
	CapAdmin Capability = iota + 1
	// CapOracleManager registers providers, risk parameters and last-good prices.
	CapOracleManager
	// CapGuardian freezes assets, pushes emergency prices and moves pegs.
	CapGuardian
)

// String returns the capability name.
func (c Capability) String() string {
	switch c {
	case CapAdmin:
		return "admin"
	case CapOracleManager:
		return "oracle_manager"
	case CapGuardian:
		return "guardian"
	default:
		return fmt.Sprintf("capability(%d)", uint8(c))
	}
}

// ParseCapability converts a capability name back into a Capability.
func ParseCapability(s string) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return CapAdmin, nil
	case "oracle_manager", "manager":
		return CapOracleManager, nil
	case "guardian":
		return CapGuardian, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownCapability, s)
	}
}

func (c Capability) valid() bool {
	return c >= CapAdmin && c <= CapGuardian
}

// PendingHandover is an in-progress two-step admin transfer.
type PendingHandover struct {
	PendingAdmin Principal `json:"pending_admin"`
	Initiator    Principal `json:"initiator"`
}

// Control is the authorization table shared by the aggregator and every
// provider wrapper of a process.
type Control struct {
	mu      sync.RWMutex
	grants  map[Principal]map[Capability]struct{}
	pending *PendingHandover
}

// NewControl creates a table whose only entry is admin holding CapAdmin.
func NewControl(admin Principal) (*Control, error) {
	if admin == "" {
		return nil, fmt.Errorf("%w: admin", ErrEmptyPrincipal)
	}
	c := &Control{
		grants: make(map[Principal]map[Capability]struct{}),
	}
	c.set(admin, CapAdmin)
	return c, nil
}

// Has reports whether p holds capability c.
func (c *Control) Has(p Principal, capability Capability) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.grants[p][capability]
	return ok
}

// Authorize returns ErrUnauthorized unless p holds capability c.
func (c *Control) Authorize(p Principal, capability Capability) error {
	if !c.Has(p, capability) {
		return fmt.Errorf("%w: %q lacks %s", ErrUnauthorized, p, capability)
	}
	return nil
}

// Grant gives p the capability. Only an admin may grant.
func (c *Control) Grant(caller, p Principal, capability Capability) error {
	if err := c.checkMutable(caller, p, capability); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(p, capability)
	return nil
}

// Revoke removes the capability from p. Only an admin may revoke.
func (c *Control) Revoke(caller, p Principal, capability Capability) error {
	if err := c.checkMutable(caller, p, capability); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unset(p, capability)
	return nil
}

func (c *Control) checkMutable(caller, p Principal, capability Capability) error {
	if err := c.Authorize(caller, CapAdmin); err != nil {
		return err
	}
	if p == "" {
		return fmt.Errorf("%w: grantee", ErrEmptyPrincipal)
	}
	if !capability.valid() {
		return fmt.Errorf("%w: %d", ErrUnknownCapability, capability)
	}
	if capability == CapAdmin {
		return ErrAdminViaHandoverOnly
	}
	return nil
}

// Holders lists the principals holding capability c, sorted.
func (c *Control) Holders(capability Capability) []Principal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	holders := make([]Principal, 0)
	for p, caps := range c.grants {
		if _, ok := caps[capability]; ok {
			holders = append(holders, p)
		}
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i] < holders[j] })
	return holders
}

// BeginHandover records newAdmin as the pending admin. Control does not move
// until newAdmin accepts.
func (c *Control) BeginHandover(caller, newAdmin Principal) error {
	if err := c.Authorize(caller, CapAdmin); err != nil {
		return err
	}
	if newAdmin == "" {
		return fmt.Errorf("%w: new admin", ErrEmptyPrincipal)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return fmt.Errorf("%w: %q", ErrHandoverPending, c.pending.PendingAdmin)
	}
	c.pending = &PendingHandover{PendingAdmin: newAdmin, Initiator: caller}
	return nil
}

// AcceptHandover completes the transfer. The caller must be exactly the
// pending admin; the initiator loses CapAdmin.
func (c *Control) AcceptHandover(caller Principal) (PendingHandover, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return PendingHandover{}, ErrNoHandoverPending
	}
	if caller != c.pending.PendingAdmin {
		return PendingHandover{}, fmt.Errorf("%w: %q", ErrNotPendingAdmin, caller)
	}

	done := *c.pending
	c.set(done.PendingAdmin, CapAdmin)
	if done.Initiator != done.PendingAdmin {
		c.unset(done.Initiator, CapAdmin)
	}
	c.pending = nil
	return done, nil
}

// CancelHandover clears the pending handover. Callable by any admin.
func (c *Control) CancelHandover(caller Principal) error {
	if err := c.Authorize(caller, CapAdmin); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return ErrNoHandoverPending
	}
	c.pending = nil
	return nil
}

// Pending returns the in-progress handover, if any.
func (c *Control) Pending() (PendingHandover, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pending == nil {
		return PendingHandover{}, false
	}
	return *c.pending, true
}

// set and unset require c.mu held for writing (or exclusive construction).
func (c *Control) set(p Principal, capability Capability) {
	caps, ok := c.grants[p]
	if !ok {
		caps = make(map[Capability]struct{})
		c.grants[p] = caps
	}
	caps[capability] = struct{}{}
}

func (c *Control) unset(p Principal, capability Capability) {
	caps, ok := c.grants[p]
	if !ok {
		return
	}
	delete(caps, capability)
	if len(caps) == 0 {
		delete(c.grants, p)
	}
}
