package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doccraft-collab/internal/domain"
	"doccraft-collab/internal/registry"
	"doccraft-collab/internal/service"
	"doccraft-collab/internal/tasks"
)

// recordingEnqueuer captures enqueued tasks so tests can observe the
// fire-and-forget persistence path.
type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (e *recordingEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func (e *recordingEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

func (e *recordingEnqueuer) last() *asynq.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.tasks) == 0 {
		return nil
	}
	return e.tasks[len(e.tasks)-1]
}

func newTestService(t *testing.T) (*service.PresenceService, *recordingEnqueuer) {
	t.Helper()
	enqueuer := &recordingEnqueuer{}
	svc := service.NewPresenceService(registry.NewMemoryRegistry(), enqueuer)
	return svc, enqueuer
}

func TestPresenceService_Join_Success(t *testing.T) {
	svc, enqueuer := newTestService(t)
	ctx := context.Background()

	err := svc.Join(ctx, "room1", "u1", "Alice", "#FF0000")
	require.NoError(t, err)

	sessions, err := svc.ListActive(ctx, "room1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Alice", sessions[0].DisplayName)
	assert.Equal(t, "#FF0000", sessions[0].DisplayColor)

	assert.Eventually(t, func() bool {
		return enqueuer.count() == 1
	}, time.Second, 10*time.Millisecond, "join should enqueue one persist task")
	assert.Equal(t, tasks.TypeSessionPersist, enqueuer.last().Type())
}

func TestPresenceService_Join_DefaultsNameAndColor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	err := svc.Join(ctx, "room1", "u1", "", "")
	require.NoError(t, err)

	sessions, err := svc.ListActive(ctx, "room1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "u1", sessions[0].DisplayName)
	assert.Equal(t, domain.DefaultDisplayColor, sessions[0].DisplayColor)
}

func TestPresenceService_Join_MissingIdentifiers(t *testing.T) {
	svc, enqueuer := newTestService(t)
	ctx := context.Background()

	err := svc.Join(ctx, "", "u1", "Alice", "")
	assert.ErrorIs(t, err, service.ErrInvalidSession)

	err = svc.Join(ctx, "room1", "", "Alice", "")
	assert.ErrorIs(t, err, service.ErrInvalidSession)

	assert.Equal(t, 0, enqueuer.count())
}

func TestPresenceService_Join_EnqueueFailureDoesNotFailJoin(t *testing.T) {
	enqueuer := &recordingEnqueuer{err: errors.New("broker down")}
	svc := service.NewPresenceService(registry.NewMemoryRegistry(), enqueuer)
	ctx := context.Background()

	err := svc.Join(ctx, "room1", "u1", "Alice", "")
	require.NoError(t, err)

	sessions, err := svc.ListActive(ctx, "room1")
	require.NoError(t, err)
	assert.Len(t, sessions, 1, "registry state must survive a failed persist enqueue")
}

func TestPresenceService_Leave_Idempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Join(ctx, "room1", "u1", "Alice", ""))
	require.NoError(t, svc.Leave(ctx, "room1", "u1"))
	require.NoError(t, svc.Leave(ctx, "room1", "u1"))
	require.NoError(t, svc.Leave(ctx, "room1", "never-joined"))

	sessions, err := svc.ListActive(ctx, "room1")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestPresenceService_Leave_EnqueuesOnlyForKnownSessions(t *testing.T) {
	svc, enqueuer := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Join(ctx, "room1", "u1", "Alice", ""))
	require.NoError(t, svc.Leave(ctx, "room1", "u1"))
	require.NoError(t, svc.Leave(ctx, "room1", "ghost"))

	assert.Eventually(t, func() bool {
		return enqueuer.count() == 2
	}, time.Second, 10*time.Millisecond, "one task for join, one for the real leave")
}

func TestPresenceService_OnSocketClose(t *testing.T) {
	svc, enqueuer := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Join(ctx, "room1", "u1", "Alice", ""))
	svc.OnSocketClose(ctx, "room1", "u1")

	sessions, err := svc.ListActive(ctx, "room1")
	require.NoError(t, err)
	assert.Empty(t, sessions)

	// Unknown sessions are ignored without enqueuing anything further.
	svc.OnSocketClose(ctx, "room1", "ghost")
	assert.Eventually(t, func() bool {
		return enqueuer.count() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestPresenceService_ListActive_UnknownRoom(t *testing.T) {
	svc, _ := newTestService(t)

	sessions, err := svc.ListActive(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
