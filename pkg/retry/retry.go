// Package retry runs fallible actions until they succeed or a strategy gives
// up on them.
package retry

// Action is one attempt at an operation.
type Action func() error

// Retrier runs actions under a fixed set of strategies.
type Retrier interface {
	Retry(action Action) (uint, error)
}

type retrier []Strategy

// NewRetrier binds strategies to a reusable Retrier. Without strategies the
// action is retried until it succeeds.
func NewRetrier(strategies ...Strategy) Retrier {
	return retrier(strategies)
}

func (r retrier) Retry(action Action) (uint, error) {
	return Retry(action, r...)
}

// Retry runs action until it returns nil or one of the strategies declines
// another attempt, and reports how many attempts were made along with the
// last error.
//
// Strategies run in order after each failed attempt and evaluation stops at
// the first one that declines, so delaying strategies go last.
func Retry(action Action, strategies ...Strategy) (uint, error) {
	var attempt uint
	for {
		attempt++

		err := action()
		if err == nil {
			return attempt, nil
		}
		if !allow(strategies, attempt, err) {
			return attempt, err
		}
	}
}

func allow(strategies []Strategy, attempt uint, err error) bool {
	for _, s := range strategies {
		if !s(attempt, err) {
			return false
		}
	}
	return true
}
