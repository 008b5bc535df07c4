package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"TryOn/internal/biz"
	"TryOn/internal/conf"
	"TryOn/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ transport.Server = (*DrainServer)(nil)

func queueWithItems(t *testing.T, ids ...string) *biz.UploadQueue {
	t.Helper()
	queue := biz.NewUploadQueue(data.NewMemoryStore(), log.DefaultLogger)
	for _, id := range ids {
		item := biz.NewQueuedUpload("file:///tmp/"+id+".jpg", "tops", 10, 10, time.Now())
		require.NoError(t, queue.Enqueue(context.Background(), item))
	}
	return queue
}

func TestDrainServer_Disabled(t *testing.T) {
	s, err := NewDrainServer(&conf.Upload{}, queueWithItems(t), stubUploader{}, log.DefaultLogger)
	require.NoError(t, err)

	assert.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop(context.Background()))
}

func TestDrainServer_InvalidSchedule(t *testing.T) {
	_, err := NewDrainServer(&conf.Upload{DrainSchedule: "every five minutes"}, queueWithItems(t), stubUploader{}, log.DefaultLogger)
	assert.Error(t, err)
}

func TestDrainServer_DrainKeepsFailures(t *testing.T) {
	queue := queueWithItems(t, "a", "b")
	s, err := NewDrainServer(&conf.Upload{}, queue, stubUploader{err: errors.New("503")}, log.DefaultLogger)
	require.NoError(t, err)

	s.drain()

	length, err := queue.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, length)
}

func TestDrainServer_RunsOnSchedule(t *testing.T) {
	queue := queueWithItems(t, "a", "b", "c")
	s, err := NewDrainServer(&conf.Upload{DrainSchedule: "* * * * * *"}, queue, stubUploader{}, log.DefaultLogger)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, s.Stop(ctx))
	}()

	assert.Eventually(t, func() bool {
		length, err := queue.Length(context.Background())
		return err == nil && length == 0
	}, 5*time.Second, 50*time.Millisecond)
}
