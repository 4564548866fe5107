package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTask(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		data, err := json.Marshal(Task{DocumentID: 42})
		require.NoError(t, err)

		task, err := DecodeTask(data)
		require.NoError(t, err)
		assert.Equal(t, int64(42), task.DocumentID)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := DecodeTask([]byte("{not json"))
		assert.Error(t, err)
	})

	t.Run("missing document id", func(t *testing.T) {
		_, err := DecodeTask([]byte(`{}`))
		assert.Error(t, err)
	})
}

type recordingDispatcher struct {
	ids []int64
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, documentID int64) error {
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, documentID)
	return nil
}

type recordingRunner struct {
	ids []int64
	err error
}

func (r *recordingRunner) Run(_ context.Context, documentID int64) error {
	if r.err != nil {
		return r.err
	}
	r.ids = append(r.ids, documentID)
	return nil
}

func TestDirectDispatcher(t *testing.T) {
	runner := &recordingRunner{}
	d := NewDirectDispatcher(runner)

	require.NoError(t, d.Dispatch(context.Background(), 7))
	assert.Equal(t, []int64{7}, runner.ids)
}

func TestFallbackDispatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("primary handles dispatch", func(t *testing.T) {
		primary := &recordingDispatcher{}
		secondary := &recordingDispatcher{}
		d := NewFallbackDispatcher(primary, secondary)

		require.NoError(t, d.Dispatch(ctx, 1))
		assert.Equal(t, []int64{1}, primary.ids)
		assert.Empty(t, secondary.ids)
	})

	t.Run("secondary takes over when primary fails", func(t *testing.T) {
		primary := &recordingDispatcher{err: errors.New("broker unreachable")}
		secondary := &recordingDispatcher{}
		d := NewFallbackDispatcher(primary, secondary)

		require.NoError(t, d.Dispatch(ctx, 2))
		assert.Equal(t, []int64{2}, secondary.ids)
	})

	t.Run("both failing surfaces the secondary error", func(t *testing.T) {
		primary := &recordingDispatcher{err: errors.New("broker unreachable")}
		secondaryErr := errors.New("pipeline failed")
		d := NewFallbackDispatcher(primary, &recordingDispatcher{err: secondaryErr})

		err := d.Dispatch(ctx, 3)
		assert.ErrorIs(t, err, secondaryErr)
	})
}
