package livegraph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrySerialize(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name      string
		widget    *Widget
		wantValue any
		wantOK    bool
		wantErr   bool
	}{
		{
			name:      "no serializer uses raw value",
			widget:    &Widget{Name: "seed", Value: 42},
			wantValue: 42,
			wantOK:    true,
		},
		{
			name: "serializer output wins",
			widget: &Widget{Name: "image", Value: "a.png", Serializer: SerializerFunc(func(context.Context) (any, error) {
				return "input/a.png", nil
			})},
			wantValue: "input/a.png",
			wantOK:    true,
		},
		{
			name: "nil raw value skips serializer",
			widget: &Widget{Name: "image", Serializer: SerializerFunc(func(context.Context) (any, error) {
				panic("must not be called")
			})},
			wantValue: nil,
			wantOK:    true,
		},
		{
			name: "serializer error falls back",
			widget: &Widget{Name: "text", Value: "raw", Serializer: SerializerFunc(func(context.Context) (any, error) {
				return nil, errors.New("boom")
			})},
			wantValue: "raw",
			wantErr:   true,
		},
		{
			name: "serializer panic falls back",
			widget: &Widget{Name: "text", Value: "raw", Serializer: SerializerFunc(func(context.Context) (any, error) {
				panic("boom")
			})},
			wantValue: "raw",
			wantErr:   true,
		},
		{
			name: "serializer nil result falls back",
			widget: &Widget{Name: "text", Value: "raw", Serializer: SerializerFunc(func(context.Context) (any, error) {
				return nil, nil
			})},
			wantValue: "raw",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			value, ok, err := tc.widget.TrySerialize(ctx)
			assert.Equal(t, tc.wantValue, value)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTryLoad(t *testing.T) {
	ctx := context.Background()

	plain := &Widget{Name: "seed", Value: 1}
	require.NoError(t, plain.TryLoad(ctx, 7))
	assert.Equal(t, 7, plain.Value)

	var loaded any
	withLoader := &Widget{Name: "image", Value: "default.png"}
	withLoader.Loader = LoaderFunc(func(_ context.Context, v any) error {
		loaded = v
		withLoader.Value = v
		return nil
	})
	require.NoError(t, withLoader.TryLoad(ctx, "mine.png"))
	assert.Equal(t, "mine.png", loaded)
	assert.Equal(t, "mine.png", withLoader.Value)

	panicky := &Widget{Name: "bad", Value: 1, Loader: LoaderFunc(func(context.Context, any) error {
		panic("loader exploded")
	})}
	err := panicky.TryLoad(ctx, 2)
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "loader exploded", panicErr.Value)
	assert.Equal(t, 1, panicky.Value)
}

func TestInstance_Widgets(t *testing.T) {
	n := NewInstance(3, "KSampler")
	require.NoError(t, n.AddWidget(&Widget{Name: "seed"}))
	require.Error(t, n.AddWidget(&Widget{Name: "seed"}))

	w, ok := n.Widget("seed")
	require.True(t, ok)
	assert.Equal(t, "seed", w.Name)

	_, ok = n.Widget("missing")
	assert.False(t, ok)
	assert.Equal(t, "3", n.ID().String())
}
