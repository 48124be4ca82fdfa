package jobs

import (
	"context"
	"encoding/json"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *asynq.Inspector) {
	t.Helper()
	mr := miniredis.RunT(t)
	opts := asynq.RedisClientOpt{Addr: mr.Addr()}
	client, err := NewClient(opts)
	require.NoError(t, err)
	inspector := asynq.NewInspector(opts)
	t.Cleanup(func() {
		_ = client.Close()
		_ = inspector.Close()
	})
	return client, inspector
}

func TestNewReconcileRunTask(t *testing.T) {
	task, err := NewReconcileRunTask(ReconcileRunPayload{RequestedBy: "cron"})
	require.NoError(t, err)
	require.Equal(t, TaskReconcileRun, task.Type())

	var payload ReconcileRunPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "cron", payload.RequestedBy)
}

func TestEnqueueReconcileRun(t *testing.T) {
	client, inspector := newTestClient(t)

	info, err := client.EnqueueReconcileRun(context.Background(), ReconcileRunPayload{RequestedBy: "api"})
	require.NoError(t, err)
	require.Equal(t, TaskReconcileRun, info.Type)
	require.Equal(t, QueueDefault, info.Queue)

	queueInfo, err := inspector.GetQueueInfo(QueueDefault)
	require.NoError(t, err)
	require.Equal(t, 1, queueInfo.Pending)
}

func TestEnqueueReconcileRunCollapsesDuplicates(t *testing.T) {
	client, inspector := newTestClient(t)

	_, err := client.EnqueueReconcileRun(context.Background(), ReconcileRunPayload{RequestedBy: "api"})
	require.NoError(t, err)

	_, err = client.EnqueueReconcileRun(context.Background(), ReconcileRunPayload{RequestedBy: "api"})
	require.ErrorIs(t, err, asynq.ErrTaskIDConflict)

	queueInfo, err := inspector.GetQueueInfo(QueueDefault)
	require.NoError(t, err)
	require.Equal(t, 1, queueInfo.Pending)
}
