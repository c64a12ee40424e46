package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentworld/nexusworld/pkg/models"
)

func TestMemoryStoreWorldLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	w := models.NewWorld("w1", time.Now())
	require.NoError(t, store.CreateWorld(ctx, w))
	require.ErrorIs(t, store.CreateWorld(ctx, w), ErrAlreadyExists)

	got, err := store.GetWorld(ctx, "w1")
	require.NoError(t, err)
	require.Equal(t, "w1", got.ID)

	got.CurrentChatID = "c1"
	require.NoError(t, store.UpdateWorld(ctx, got))

	reloaded, err := store.GetWorld(ctx, "w1")
	require.NoError(t, err)
	require.Equal(t, "c1", reloaded.CurrentChatID)

	require.NoError(t, store.DeleteWorld(ctx, "w1"))
	_, err = store.GetWorld(ctx, "w1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreSaveAgentRejectsMissingMessageID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateWorld(ctx, models.NewWorld("w1", time.Now())))

	agent := models.Agent{
		ID:   "a1",
		Name: "Agent One",
		Memory: []models.AgentMessage{
			{Role: models.RoleUser, Content: "hi", MessageID: "m1"},
			{Role: models.RoleAssistant, Content: "missing id"},
		},
	}

	err := store.SaveAgent(ctx, "w1", agent)
	require.Error(t, err)
	var invalid *InvalidMessageError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, 1, invalid.Count)
}

func TestMemoryStoreAgentCloneIsDefensive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateWorld(ctx, models.NewWorld("w1", time.Now())))

	agent := models.Agent{
		ID:     "a1",
		Name:   "Agent One",
		Memory: []models.AgentMessage{{Role: models.RoleUser, Content: "hi", MessageID: "m1"}},
	}
	require.NoError(t, store.CreateAgent(ctx, "w1", agent))

	got, err := store.GetAgent(ctx, "w1", "a1")
	require.NoError(t, err)
	got.Memory[0].Content = "mutated"

	reloaded, err := store.GetAgent(ctx, "w1", "a1")
	require.NoError(t, err)
	require.Equal(t, "hi", reloaded.Memory[0].Content)
}

func TestMemoryStoreChatCascadeDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateWorld(ctx, models.NewWorld("w1", time.Now())))
	require.NoError(t, store.CreateChat(ctx, "w1", models.NewChat("c1", time.Now())))

	agent := models.Agent{
		ID:   "a1",
		Name: "Agent One",
		Memory: []models.AgentMessage{
			{Role: models.RoleUser, Content: "in chat", MessageID: "m1", ChatID: "c1"},
			{Role: models.RoleUser, Content: "elsewhere", MessageID: "m2", ChatID: "c2"},
		},
	}
	require.NoError(t, store.CreateAgent(ctx, "w1", agent))
	require.NoError(t, store.AppendEvent(ctx, "w1", models.Event{ID: "e1", ChatID: "c1"}))
	require.NoError(t, store.AppendEvent(ctx, "w1", models.Event{ID: "e2", ChatID: "c2"}))

	require.NoError(t, store.DeleteChat(ctx, "w1", "c1"))

	events, err := store.ListEvents(ctx, "w1", "c1")
	require.NoError(t, err)
	require.Empty(t, events)

	reloaded, err := store.GetAgent(ctx, "w1", "a1")
	require.NoError(t, err)
	require.Len(t, reloaded.Memory, 1)
	require.Equal(t, "c2", reloaded.Memory[0].ChatID)
}

func TestMemoryStoreQueryMemoryScopesByChat(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateWorld(ctx, models.NewWorld("w1", time.Now())))

	a1 := models.Agent{ID: "a1", Memory: []models.AgentMessage{
		{Role: models.RoleUser, Content: "x", MessageID: "m1", ChatID: "c1"},
	}}
	a2 := models.Agent{ID: "a2", Memory: []models.AgentMessage{
		{Role: models.RoleUser, Content: "y", MessageID: "m2", ChatID: "c2"},
	}}
	require.NoError(t, store.CreateAgent(ctx, "w1", a1))
	require.NoError(t, store.CreateAgent(ctx, "w1", a2))

	msgs, err := store.QueryMemory(ctx, "w1", "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "x", msgs[0].Content)
}
