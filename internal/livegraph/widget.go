package livegraph

import (
	"context"
	"fmt"
	"runtime/debug"
)

// WidgetKind tells how a widget edits its value.
type WidgetKind int

const (
	// KindValue is a plain number, text or toggle widget.
	KindValue WidgetKind = iota
	// KindChoice is a choice list (combo) widget.
	KindChoice
	// KindButton carries no value worth reconciling.
	KindButton
)

// String implements fmt.Stringer.
func (k WidgetKind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindChoice:
		return "choice"
	case KindButton:
		return "button"
	}
	return fmt.Sprintf("WidgetKind(%d)", int(k))
}

// Serializer produces the value to capture for a widget. Returning a nil
// value means "nothing to offer" and the raw value is used instead.
type Serializer interface {
	SerializeValue(ctx context.Context) (any, error)
}

// Loader puts a captured value back into a widget. It may block, for example
// while it fetches a preview for the value.
type Loader interface {
	LoadValue(ctx context.Context, value any) error
}

// SerializerFunc adapts a function to the Serializer interface.
type SerializerFunc func(ctx context.Context) (any, error)

// SerializeValue calls f(ctx).
func (f SerializerFunc) SerializeValue(ctx context.Context) (any, error) { return f(ctx) }

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, value any) error

// LoadValue calls f(ctx, value).
func (f LoaderFunc) LoadValue(ctx context.Context, value any) error { return f(ctx, value) }

// Pending is a captured value that is not available yet. The restorer awaits
// it before assigning.
type Pending interface {
	Await(ctx context.Context) (any, error)
}

// Widget is a named, mutable field on an instance.
type Widget struct {
	Name    string
	Kind    WidgetKind
	Value   any
	Choices []any

	Serializer Serializer
	Loader     Loader
}

// TrySerialize returns the value to capture. ok is false when the widget
// has a serializer that failed, panicked or returned nil; value is the raw
// value in that case and err explains the failure, if any.
func (w *Widget) TrySerialize(ctx context.Context) (value any, ok bool, err error) {
	if w.Serializer == nil {
		return w.Value, true, nil
	}
	if w.Value == nil {
		return nil, true, nil
	}

	out, err := callSerializer(ctx, w.Serializer)
	if err != nil {
		return w.Value, false, err
	}
	if out == nil {
		return w.Value, false, nil
	}
	return out, true, nil
}

// TryLoad puts value back into the widget, through the loader if there is
// one. A panicking loader is reported as an error.
func (w *Widget) TryLoad(ctx context.Context, value any) (err error) {
	if w.Loader == nil {
		w.Value = value
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return w.Loader.LoadValue(ctx, value)
}

func callSerializer(ctx context.Context, s Serializer) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return s.SerializeValue(ctx)
}

// PanicError wraps a value recovered from a host-supplied callback.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
