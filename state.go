package sia

type OnState uint8

const (
	OnUnknown OnState = iota
	Off
	On
)

// OnStateOf converts a reported value into an OnState.
func OnStateOf(on bool) OnState {
	if on {
		return On
	}
	return Off
}

func (s OnState) String() string {
	switch s {
	case Off:
		return "off"
	case On:
		return "on"
	default:
		return "unknown"
	}
}

// Bool returns the on/off value, and false as second value if it is unknown.
func (s OnState) Bool() (on bool, known bool) {
	switch s {
	case On:
		return true, true
	case Off:
		return false, true
	default:
		return false, false
	}
}

// ParseOnState is the inverse of String. Anything unrecognized is unknown.
func ParseOnState(s string) OnState {
	switch s {
	case "on":
		return On
	case "off":
		return Off
	default:
		return OnUnknown
	}
}

func (s OnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OnState) UnmarshalText(b []byte) error {
	*s = ParseOnState(string(b))
	return nil
}
