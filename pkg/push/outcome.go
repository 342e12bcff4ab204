package push

import "fmt"

// Status classifies the result of one delivery attempt.
type Status int

const (
	// StatusDelivered means the provider accepted the payload.
	StatusDelivered Status = iota
	// StatusTransient means delivery failed but the credential is still valid.
	StatusTransient
	// StatusPermanent means the credential is dead and must be pruned.
	StatusPermanent
)

func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusTransient:
		return "transient"
	case StatusPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Outcome is the result of Transport.Deliver. Reason is for logs only.
type Outcome struct {
	Status Status
	Reason string
}

func Delivered() Outcome {
	return Outcome{Status: StatusDelivered}
}

func TransientFailure(format string, args ...any) Outcome {
	return Outcome{Status: StatusTransient, Reason: fmt.Sprintf(format, args...)}
}

func PermanentFailure(format string, args ...any) Outcome {
	return Outcome{Status: StatusPermanent, Reason: fmt.Sprintf(format, args...)}
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return o.Status.String()
	}
	return o.Status.String() + ": " + o.Reason
}
