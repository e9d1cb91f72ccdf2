package helper

import (
	"context"
	"time"

	"codeberg.org/mutker/cpupowerctl/internal/errors"
	"codeberg.org/mutker/cpupowerctl/internal/logger"
	"github.com/godbus/dbus/v5"
)

// ActionID is the policy action checked for every mutating call.
const ActionID = "org.codeberg.cpupowerctl.apply-runtime"

const (
	polkitService   = "org.freedesktop.PolicyKit1"
	polkitPath      = "/org/freedesktop/PolicyKit1/Authority"
	polkitInterface = "org.freedesktop.PolicyKit1.Authority"

	// CheckAuthorization flag: the authority may prompt the operator
	allowUserInteraction uint32 = 1
)

// Authority decides whether a bus caller may perform an action. The polkit
// implementation is swapped for a mock in tests.
type Authority interface {
	CheckAuthorization(ctx context.Context, sender, actionID string) (authorized, challenge bool, err error)
}

// polkitAuthority consults the PolicyKit authority over the system bus.
type polkitAuthority struct {
	conn *dbus.Conn
}

func NewPolkitAuthority(conn *dbus.Conn) Authority {
	return &polkitAuthority{conn: conn}
}

// polkitSubject is the (sa{sv}) subject structure of CheckAuthorization.
type polkitSubject struct {
	Kind    string
	Details map[string]dbus.Variant
}

func (p *polkitAuthority) CheckAuthorization(ctx context.Context, sender, actionID string) (bool, bool, error) {
	subject := polkitSubject{
		Kind: "system-bus-name",
		Details: map[string]dbus.Variant{
			"name": dbus.MakeVariant(sender),
		},
	}

	var result struct {
		IsAuthorized bool
		IsChallenge  bool
		Details      map[string]string
	}

	obj := p.conn.Object(polkitService, dbus.ObjectPath(polkitPath))
	call := obj.CallWithContext(ctx, polkitInterface+".CheckAuthorization", 0,
		subject, actionID, map[string]string{}, allowUserInteraction, "")
	if call.Err != nil {
		return false, false, call.Err
	}

	if err := call.Store(&result); err != nil {
		return false, false, err
	}

	return result.IsAuthorized, result.IsChallenge, nil
}

// Authorizer gates mutating calls behind the policy authority and caches
// positive decisions per (caller, action) for the life of the process.
// The cache is never evicted; the idle timeout bounds its lifetime.
type Authorizer struct {
	authority Authority
	timeout   time.Duration
	decisions map[string]bool
}

func NewAuthorizer(authority Authority, timeout time.Duration) *Authorizer {
	return &Authorizer{
		authority: authority,
		timeout:   timeout,
		decisions: make(map[string]bool),
	}
}

// Authorize reports whether the sender may perform the action. An empty
// sender marks a local (same-process) caller, which is always allowed.
// Authority failures are fail-closed: any error denies.
func (a *Authorizer) Authorize(sender, actionID string) bool {
	if sender == "" {
		return true
	}

	key := sender + actionID
	if allowed, ok := a.decisions[key]; ok {
		return allowed
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	authorized, challenge, err := a.authority.CheckAuthorization(ctx, sender, actionID)
	if err != nil {
		wrapped := errors.New().Wrap(ErrAuthorityCall, err)
		logger.Warn().Err(wrapped).Str("sender", sender).Msg("Authority check failed, denying")
		return false
	}

	logger.Debug().
		Str("sender", sender).
		Bool("authorized", authorized).
		Bool("challenge", challenge).
		Msg("Authority decision")

	// A challenge reply is an incomplete interactive flow, not a durable
	// grant, so it is never cached.
	if authorized && !challenge {
		a.decisions[key] = true
	}

	return authorized
}
