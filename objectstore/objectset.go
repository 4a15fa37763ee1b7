// Package objectstore provides a small generic container for named model
// objects (state variables, actions, services, devices), keyed by name and
// iterable in Go 1.23 range-over-func style.
package objectstore

import "iter"

// Object is anything that can be stored by name in an ObjectSet.
type Object interface {
	Name() string
}

// ObjectSet is an insertion-order-agnostic map of objects keyed by Name().
type ObjectSet[T Object] map[string]T

func New[T Object]() ObjectSet[T] {
	return make(ObjectSet[T])
}

func (m *ObjectSet[T]) Insert(obj T) {
	if *m == nil {
		*m = make(ObjectSet[T])
	}
	(*m)[obj.Name()] = obj
}

func (m *ObjectSet[T]) Delete(name string) {
	delete(*m, name)
}

func (m *ObjectSet[T]) Get(name string) (T, bool) {
	v, ok := (*m)[name]
	return v, ok
}

func (m *ObjectSet[T]) Contains(obj T) bool {
	_, ok := (*m)[obj.Name()]
	return ok
}

func (m *ObjectSet[T]) Len() int {
	return len(*m)
}

func (m *ObjectSet[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, v := range *m {
			if !yield(v) {
				return
			}
		}
	}
}
