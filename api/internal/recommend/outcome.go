package recommend

// Outcome — результат этапа с мягким отказом: либо значение, либо причина перехода на запасной путь.
type Outcome[T any] struct {
	Value    T
	Reason   string
	fallback bool
}

func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

func Fallback[T any](reason string) Outcome[T] {
	return Outcome[T]{Reason: reason, fallback: true}
}

func (o Outcome[T]) IsFallback() bool { return o.fallback }
