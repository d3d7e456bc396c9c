package a2a

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turnTask(id, contextID string, state TaskState) Task {
	return Task{
		ID:        id,
		ContextID: contextID,
		Status:    TaskStatus{State: state, Timestamp: time.Now().UTC()},
		History: []Message{{
			MessageID: "m-" + id,
			ContextID: contextID,
			TaskID:    id,
			Role:      RoleUser,
			Parts:     []Part{TextPart("build a quiz")},
		}},
	}
}

func TestTaskStore_CreateGet(t *testing.T) {
	s := NewTaskStore()
	require.NoError(t, s.Create(turnTask("t1", "s1", TaskStateWorking)))

	got, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ContextID)
	assert.Equal(t, TaskStateWorking, got.Status.State)
	require.Len(t, got.History, 1)

	assert.Error(t, s.Create(turnTask("t1", "s1", TaskStateWorking)), "duplicate id")

	_, err = s.Get("missing")
	assert.ErrorContains(t, err, "not found")
}

func TestTaskStore_GetReturnsCopy(t *testing.T) {
	s := NewTaskStore()
	ts := time.Now().UTC()
	task := turnTask("t1", "s1", TaskStateWorking)
	task.History[0].Timestamp = &ts
	require.NoError(t, s.Create(task))

	got, err := s.Get("t1")
	require.NoError(t, err)
	got.History[0].Parts[0].Text = "mutated"
	*got.History[0].Timestamp = time.Time{}

	again, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, "build a quiz", again.History[0].Parts[0].Text)
	assert.True(t, ts.Equal(*again.History[0].Timestamp))
}

func TestTaskStore_AppendHistory(t *testing.T) {
	s := NewTaskStore()
	require.NoError(t, s.Create(turnTask("t1", "s1", TaskStateWorking)))

	reply := Message{MessageID: "m2", Role: RoleAgent, Author: "concept_agent", Parts: []Part{TextPart("concept")}}
	got, err := s.AppendHistory("t1", reply)
	require.NoError(t, err)
	require.Len(t, got.History, 2)
	assert.Equal(t, "concept_agent", got.History[1].Author)

	reply.Parts[0].Text = "changed after append"
	stored, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, "concept", stored.History[1].Parts[0].Text)

	_, err = s.AppendHistory("missing", reply)
	assert.Error(t, err)
}

func TestTaskStore_LatestForContext(t *testing.T) {
	s := NewTaskStore()
	require.NoError(t, s.Create(turnTask("t1", "s1", TaskStateInputRequired)))
	require.NoError(t, s.Create(turnTask("t2", "s2", TaskStateWorking)))
	require.NoError(t, s.Create(turnTask("t3", "s1", TaskStateWorking)))

	got, ok := s.LatestForContext("s1")
	require.True(t, ok)
	assert.Equal(t, "t3", got.ID)

	_, ok = s.LatestForContext("nope")
	assert.False(t, ok)
}

func TestTaskStore_Update(t *testing.T) {
	s := NewTaskStore()
	require.NoError(t, s.Create(turnTask("t1", "s1", TaskStateWorking)))

	require.NoError(t, s.Update("t1", func(task *Task) {
		task.Status.State = TaskStateInputRequired
	}))
	got, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, TaskStateInputRequired, got.Status.State)

	assert.Error(t, s.Update("missing", func(*Task) {}))
}

func TestTaskStore_ListFilters(t *testing.T) {
	s := NewTaskStore()
	require.NoError(t, s.Create(turnTask("t1", "s1", TaskStateCompleted)))
	require.NoError(t, s.Create(turnTask("t2", "s1", TaskStateInputRequired)))
	require.NoError(t, s.Create(turnTask("t3", "s2", TaskStateInputRequired)))

	resp, err := s.List(ListTasksRequest{ContextID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalSize)

	resp, err = s.List(ListTasksRequest{Status: string(TaskStateInputRequired)})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalSize)

	resp, err = s.List(ListTasksRequest{ContextID: "s1", Status: string(TaskStateInputRequired)})
	require.NoError(t, err)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, "t2", resp.Tasks[0].ID)

	resp, err = NewTaskStore().List(ListTasksRequest{})
	require.NoError(t, err)
	assert.NotNil(t, resp.Tasks)
	assert.Empty(t, resp.Tasks)
}

func TestTaskStore_ListPagination(t *testing.T) {
	s := NewTaskStore()
	for i := range 5 {
		require.NoError(t, s.Create(turnTask(fmt.Sprintf("t%d", i), "s1", TaskStateCompleted)))
	}

	page1, err := s.List(ListTasksRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page1.Tasks, 2)
	assert.Equal(t, 5, page1.TotalSize)
	assert.Equal(t, "t1", page1.NextPageToken)

	page2, err := s.List(ListTasksRequest{PageSize: 2, PageToken: page1.NextPageToken})
	require.NoError(t, err)
	assert.Equal(t, "t2", page2.Tasks[0].ID)

	page3, err := s.List(ListTasksRequest{PageSize: 2, PageToken: page2.NextPageToken})
	require.NoError(t, err)
	require.Len(t, page3.Tasks, 1)
	assert.Empty(t, page3.NextPageToken)

	_, err = s.List(ListTasksRequest{PageToken: "bogus"})
	assert.ErrorContains(t, err, "invalid page token")
}

func TestTaskStore_ConcurrentAppend(t *testing.T) {
	s := NewTaskStore()
	require.NoError(t, s.Create(turnTask("t1", "s1", TaskStateWorking)))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendHistory("t1", Message{MessageID: fmt.Sprintf("m%d", i), Role: RoleAgent})
			assert.NoError(t, err)
			_, _ = s.List(ListTasksRequest{ContextID: "s1"})
		}()
	}
	wg.Wait()

	got, err := s.Get("t1")
	require.NoError(t, err)
	assert.Len(t, got.History, 21)
}

func TestNewTaskID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewTaskID()
		require.False(t, seen[id])
		seen[id] = true
	}
	assert.NotEqual(t, NewMessageID(), NewMessageID())
}
