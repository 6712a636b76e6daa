package runtime

import "context"

// PlayerInfo describes an incoming session while it is being validated.
// SetKickReason is the host's kick-reason setter and takes effect only when
// the deferral rejects the session.
type PlayerInfo struct {
	Name          string
	SetKickReason func(reason string)
}

// Deferral is the three-step handshake handle the host provides for one
// connecting player. Defer must be called before Update; Done with an empty
// reason admits the session, a non-empty reason rejects it.
type Deferral interface {
	Defer()
	Update(message string)
	Done(reason string)
}

// SessionValidator runs the game-side admission checks for a connecting
// player. The runtime forwards the handshake and does not interpret the
// outcome; license, whitelist and ban policy all live behind this interface.
type SessionValidator interface {
	ValidateSession(ctx context.Context, player PlayerInfo, deferral Deferral) error
}

// SessionValidatorFunc adapts a function to the SessionValidator interface.
type SessionValidatorFunc func(ctx context.Context, player PlayerInfo, deferral Deferral) error

func (f SessionValidatorFunc) ValidateSession(ctx context.Context, player PlayerInfo, deferral Deferral) error {
	return f(ctx, player, deferral)
}
