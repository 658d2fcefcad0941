package eventstest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/user-portal/internal/events"
)

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	events.Emit(context.Background(), r, logger, events.UserCreated, 1)
	events.Emit(context.Background(), r, logger, events.UserLinked, 1)

	assert.Equal(t, []events.Type{events.UserCreated, events.UserLinked}, r.Types())
	assert.Equal(t, int64(1), r.Events()[1].UserID)
}

func TestRecorder_Concurrent(t *testing.T) {
	r := &Recorder{}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Publish(context.Background(), events.New(events.UserUpdated, int64(i)))
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.Events(), 20)
}
