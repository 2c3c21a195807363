package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/dispatchlite/internal/dispatch/domain"
	"github.com/example/dispatchlite/pkg/events"
)

type capturePublisher struct {
	published []domain.DispatchEvent
	err       error
}

func (c *capturePublisher) Publish(_ context.Context, event domain.DispatchEvent) error {
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, event)
	return nil
}

func makeEvents(n int) []domain.DispatchEvent {
	out := make([]domain.DispatchEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.DispatchEvent{ID: uuid.New(), Type: domain.EventRequestCreated})
	}
	return out
}

func TestNilConnectionPublishIsNoop(t *testing.T) {
	publisher := events.NewPublisher(nil, "dispatch.events")
	err := publisher.Publish(context.Background(), domain.DispatchEvent{ID: uuid.New()})
	require.NoError(t, err)
}

func TestWorkerPublishesAndMarks(t *testing.T) {
	loaded := makeEvents(3)
	var marked []domain.DispatchEvent
	sink := &capturePublisher{}

	worker := &events.Worker{
		Loader: func(context.Context) ([]domain.DispatchEvent, error) { return loaded, nil },
		Marker: func(_ context.Context, evts []domain.DispatchEvent) error {
			marked = evts
			return nil
		},
		Publisher: sink,
	}

	require.NoError(t, worker.Run(context.Background()))
	require.Equal(t, loaded, sink.published)
	require.Equal(t, loaded, marked)
}

func TestWorkerEmptyBatchSkipsMarker(t *testing.T) {
	worker := &events.Worker{
		Loader: func(context.Context) ([]domain.DispatchEvent, error) { return nil, nil },
		Marker: func(context.Context, []domain.DispatchEvent) error {
			t.Fatal("marker called on empty batch")
			return nil
		},
		Publisher: &capturePublisher{},
	}
	require.NoError(t, worker.Run(context.Background()))
}

func TestWorkerDoesNotMarkOnPublishFailure(t *testing.T) {
	markerCalled := false
	worker := &events.Worker{
		Loader: func(context.Context) ([]domain.DispatchEvent, error) { return makeEvents(1), nil },
		Marker: func(context.Context, []domain.DispatchEvent) error {
			markerCalled = true
			return nil
		},
		Publisher: &capturePublisher{err: errors.New("broker down")},
	}

	err := worker.Run(context.Background())
	require.Error(t, err)
	require.False(t, markerCalled)
}

func TestWorkerLoaderFailure(t *testing.T) {
	worker := &events.Worker{
		Loader:    func(context.Context) ([]domain.DispatchEvent, error) { return nil, errors.New("db down") },
		Publisher: &capturePublisher{},
	}
	require.ErrorContains(t, worker.Run(context.Background()), "load events")
}
