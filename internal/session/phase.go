// Package session tracks the backend's authorization phase and drives the
// interactive login steps.
package session

// Phase is the authorization state of the backend session, collapsed to
// what the client acts on.
type Phase int

const (
	Unauthenticated Phase = iota
	AwaitingPhoneNumber
	AwaitingCode
	AwaitingPassword
	Ready
	Other
)

// Backend authorization state tags.
const (
	StateWaitTdlibParameters = "authorizationStateWaitTdlibParameters"
	StateWaitPhoneNumber     = "authorizationStateWaitPhoneNumber"
	StateWaitCode            = "authorizationStateWaitCode"
	StateWaitPassword        = "authorizationStateWaitPassword"
	StateReady               = "authorizationStateReady"
	StateLoggingOut          = "authorizationStateLoggingOut"
	StateClosing             = "authorizationStateClosing"
	StateClosed              = "authorizationStateClosed"
)

func (p Phase) String() string {
	switch p {
	case Unauthenticated:
		return "unauthenticated"
	case AwaitingPhoneNumber:
		return "awaiting_phone_number"
	case AwaitingCode:
		return "awaiting_code"
	case AwaitingPassword:
		return "awaiting_password"
	case Ready:
		return "ready"
	default:
		return "other"
	}
}

// PhaseFromState maps a backend authorization state tag to a Phase. Tags the
// client does not act on map to Other.
func PhaseFromState(state string) Phase {
	switch state {
	case StateWaitTdlibParameters, StateClosed:
		return Unauthenticated
	case StateWaitPhoneNumber:
		return AwaitingPhoneNumber
	case StateWaitCode:
		return AwaitingCode
	case StateWaitPassword:
		return AwaitingPassword
	case StateReady:
		return Ready
	default:
		return Other
	}
}
