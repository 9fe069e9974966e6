package domain

type AttemptStatus string

const (
	AttemptInitiated   AttemptStatus = "INITIATED"
	AttemptRedirecting AttemptStatus = "REDIRECTING"
	AttemptAuthorized  AttemptStatus = "AUTHORIZED"
	AttemptOrderPlaced AttemptStatus = "ORDER_PLACED"
	AttemptDeclined    AttemptStatus = "DECLINED"
	AttemptFailed      AttemptStatus = "FAILED"
	AttemptAbandoned   AttemptStatus = "ABANDONED"
)

var attemptTransitions = map[AttemptStatus][]AttemptStatus{
	AttemptInitiated:   {AttemptRedirecting, AttemptAuthorized, AttemptDeclined, AttemptFailed},
	AttemptRedirecting: {AttemptAuthorized, AttemptDeclined, AttemptAbandoned, AttemptFailed},
	AttemptAuthorized:  {AttemptOrderPlaced, AttemptFailed},
	// a declined card may be retried within the same payment session
	AttemptDeclined: {AttemptRedirecting, AttemptAuthorized, AttemptDeclined, AttemptFailed},
	AttemptFailed:   {AttemptRedirecting, AttemptAuthorized, AttemptDeclined, AttemptFailed},
	// the buyer may come back from the provider after the attempt was swept
	AttemptAbandoned: {AttemptAuthorized},
}

func CanTransitionTo(from, to AttemptStatus) bool {
	for _, s := range attemptTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptOrderPlaced
}

func (s AttemptStatus) Valid() bool {
	_, ok := attemptTransitions[s]
	return ok || s == AttemptOrderPlaced
}

// String representation (for logging)
func (s AttemptStatus) String() string {
	return string(s)
}
