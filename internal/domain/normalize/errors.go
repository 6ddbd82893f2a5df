package normalize

import "errors"

// Reasons a change notification does not become a DomainEvent.
var (
	ErrUnsupportedChange = errors.New("unsupported table or change type")
	ErrBelowThreshold    = errors.New("change below noise threshold")
	ErrMalformedRow      = errors.New("malformed change row")
	ErrDuplicate         = errors.New("duplicate change")
	ErrUnresolved        = errors.New("unresolved reference")
)

// dropReason maps an error to the metric label used for it.
func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedChange):
		return "unsupported"
	case errors.Is(err, ErrBelowThreshold):
		return "below_threshold"
	case errors.Is(err, ErrMalformedRow):
		return "malformed"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrUnresolved):
		return "unresolved"
	default:
		return "other"
	}
}
