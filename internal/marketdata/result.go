package marketdata

// Result carries a value that is always usable, plus the failure that forced a fallback.
type Result[T any] struct {
	Value T
	Err   error // nil when Value came from the exchange
}

// Fallback reports whether Value was produced by the fallback path.
func (r Result[T]) Fallback() bool {
	return r.Err != nil
}

// WithFallback keeps value when err is nil and otherwise replaces it with fallback().
func WithFallback[T any](value T, err error, fallback func() T) Result[T] {
	if err == nil {
		return Result[T]{Value: value}
	}
	return Result[T]{Value: fallback(), Err: err}
}
