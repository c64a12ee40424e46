package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentworld/nexusworld/pkg/models"
)

// SQLiteStore is the durable Store backend (spec §4.10), backed by
// modernc.org/sqlite — a pure-Go driver, chosen per the teacher's
// cgo-avoidance preference over mattn/go-sqlite3 (see DESIGN.md). Complex
// nested fields (agent memory, event payloads) are stored as JSON blobs
// rather than normalised across tables, matching the teacher's own
// JSON-blob-in-SQL idiom for the same kind of append-only, schema-flexible
// data.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS worlds (
	id TEXT PRIMARY KEY,
	current_chat_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS agents (
	world_id TEXT NOT NULL,
	id TEXT NOT NULL,
	name TEXT NOT NULL,
	system_prompt TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	temperature REAL NOT NULL,
	turn_limit INTEGER NOT NULL,
	llm_call_count INTEGER NOT NULL,
	memory TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (world_id, id)
);
CREATE TABLE IF NOT EXISTS chats (
	world_id TEXT NOT NULL,
	id TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (world_id, id)
);
CREATE TABLE IF NOT EXISTS events (
	world_id TEXT NOT NULL,
	id TEXT NOT NULL,
	chat_id TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (world_id, id)
);
CREATE INDEX IF NOT EXISTS idx_events_chat ON events (world_id, chat_id);
`

// OpenSQLiteStore opens (creating if necessary) a SQLite database at path and
// ensures its schema exists. path may be ":memory:" for an ephemeral store.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// A single-writer-per-world embedded runtime: cap connections to one so
	// SQLite's own locking, not a Go-level mutex, serialises writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateWorld(ctx context.Context, world models.World) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO worlds (id, current_chat_id, created_at) VALUES (?, ?, ?)`,
		world.ID, world.CurrentChatID, world.CreatedAt.UnixNano())
	if err != nil {
		return translateUniqueErr(err)
	}
	return nil
}

func (s *SQLiteStore) GetWorld(ctx context.Context, worldID string) (models.World, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, current_chat_id, created_at FROM worlds WHERE id = ?`, worldID)
	var w models.World
	var createdAt int64
	if err := row.Scan(&w.ID, &w.CurrentChatID, &createdAt); err != nil {
		return models.World{}, translateNotFoundErr(err)
	}
	w.CreatedAt = time.Unix(0, createdAt)
	return w, nil
}

func (s *SQLiteStore) UpdateWorld(ctx context.Context, world models.World) error {
	res, err := s.db.ExecContext(ctx, `UPDATE worlds SET current_chat_id = ? WHERE id = ?`, world.CurrentChatID, world.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) DeleteWorld(ctx context.Context, worldID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM worlds WHERE id = ?`, worldID)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	_, _ = s.db.ExecContext(ctx, `DELETE FROM agents WHERE world_id = ?`, worldID)
	_, _ = s.db.ExecContext(ctx, `DELETE FROM chats WHERE world_id = ?`, worldID)
	_, _ = s.db.ExecContext(ctx, `DELETE FROM events WHERE world_id = ?`, worldID)
	return nil
}

func (s *SQLiteStore) CreateAgent(ctx context.Context, worldID string, agent models.Agent) error {
	if err := validateMemory(agent.ID, agent.Memory); err != nil {
		return err
	}
	memory, err := json.Marshal(agent.Memory)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (world_id, id, name, system_prompt, provider, model, temperature, turn_limit, llm_call_count, memory, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		worldID, agent.ID, agent.Name, agent.SystemPrompt, agent.Provider, agent.Model, agent.Temperature,
		agent.TurnLimit, agent.LLMCallCount, string(memory), agent.CreatedAt.UnixNano(), agent.UpdatedAt.UnixNano())
	if err != nil {
		return translateUniqueErr(err)
	}
	return nil
}

func (s *SQLiteStore) GetAgent(ctx context.Context, worldID, agentID string) (models.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, system_prompt, provider, model, temperature, turn_limit, llm_call_count, memory, created_at, updated_at
		FROM agents WHERE world_id = ? AND id = ?`, worldID, agentID)
	return scanAgent(row)
}

func (s *SQLiteStore) SaveAgent(ctx context.Context, worldID string, agent models.Agent) error {
	if err := validateMemory(agent.ID, agent.Memory); err != nil {
		return err
	}
	memory, err := json.Marshal(agent.Memory)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE agents SET name = ?, system_prompt = ?, provider = ?, model = ?, temperature = ?,
			turn_limit = ?, llm_call_count = ?, memory = ?, updated_at = ?
		WHERE world_id = ? AND id = ?`,
		agent.Name, agent.SystemPrompt, agent.Provider, agent.Model, agent.Temperature,
		agent.TurnLimit, agent.LLMCallCount, string(memory), agent.UpdatedAt.UnixNano(), worldID, agent.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) SaveAgents(ctx context.Context, worldID string, agents []models.Agent) error {
	for _, a := range agents {
		if err := validateMemory(a.ID, a.Memory); err != nil {
			return err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, a := range agents {
		memory, err := json.Marshal(a.Memory)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE agents SET name = ?, system_prompt = ?, provider = ?, model = ?, temperature = ?,
				turn_limit = ?, llm_call_count = ?, memory = ?, updated_at = ?
			WHERE world_id = ? AND id = ?`,
			a.Name, a.SystemPrompt, a.Provider, a.Model, a.Temperature,
			a.TurnLimit, a.LLMCallCount, string(memory), a.UpdatedAt.UnixNano(), worldID, a.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListAgents(ctx context.Context, worldID string) ([]models.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, system_prompt, provider, model, temperature, turn_limit, llm_call_count, memory, created_at, updated_at
		FROM agents WHERE world_id = ? ORDER BY id`, worldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Agent
	for rows.Next() {
		a, err := scanAgentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteAgent(ctx context.Context, worldID, agentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE world_id = ? AND id = ?`, worldID, agentID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) CreateChat(ctx context.Context, worldID string, chat models.Chat) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO chats (world_id, id, name, created_at) VALUES (?, ?, ?, ?)`,
		worldID, chat.ID, chat.Name, chat.CreatedAt.UnixNano())
	if err != nil {
		return translateUniqueErr(err)
	}
	return nil
}

func (s *SQLiteStore) GetChat(ctx context.Context, worldID, chatID string) (models.Chat, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM chats WHERE world_id = ? AND id = ?`, worldID, chatID)
	var c models.Chat
	var createdAt int64
	if err := row.Scan(&c.ID, &c.Name, &createdAt); err != nil {
		return models.Chat{}, translateNotFoundErr(err)
	}
	c.CreatedAt = time.Unix(0, createdAt)
	return c, nil
}

func (s *SQLiteStore) UpdateChat(ctx context.Context, worldID string, chat models.Chat) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chats SET name = ? WHERE world_id = ? AND id = ?`, chat.Name, worldID, chat.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeleteChat removes chat and cascade-deletes its messages and events, per
// the data-model lifecycle rule (spec §3).
func (s *SQLiteStore) DeleteChat(ctx context.Context, worldID, chatID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE world_id = ? AND id = ?`, worldID, chatID)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE world_id = ? AND chat_id = ?`, worldID, chatID); err != nil {
		return err
	}

	agents, err := s.ListAgents(ctx, worldID)
	if err != nil {
		return err
	}
	for _, a := range agents {
		filtered := a.Memory[:0]
		for _, m := range a.Memory {
			if m.ChatID != chatID {
				filtered = append(filtered, m)
			}
		}
		a.Memory = filtered
		if err := s.SaveAgent(ctx, worldID, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) ListChats(ctx context.Context, worldID string) ([]models.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM chats WHERE world_id = ? ORDER BY created_at`, worldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chat
	for rows.Next() {
		var c models.Chat
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.Name, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(0, createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// AppendEvent relies on the events table's (world_id, id) primary key to
// surface the historical bare-messageId SSE collision bug (spec §4.8) as a
// clean error rather than a silent duplicate-insert failure.
func (s *SQLiteStore) AppendEvent(ctx context.Context, worldID string, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO events (world_id, id, chat_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		worldID, ev.ID, ev.ChatID, string(payload), ev.Timestamp.UnixNano())
	if err != nil {
		return translateUniqueErr(err)
	}
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, worldID, chatID string) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM events WHERE world_id = ? AND chat_id = ? ORDER BY created_at`, worldID, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Event, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev models.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) QueryMemory(ctx context.Context, worldID, chatID string) ([]models.AgentMessage, error) {
	agents, err := s.ListAgents(ctx, worldID)
	if err != nil {
		return nil, err
	}
	out := make([]models.AgentMessage, 0)
	for _, a := range agents {
		for _, m := range a.Memory {
			if m.ChatID == chatID {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(row scanner) (models.Agent, error) {
	return scanAgentRow(row)
}

func scanAgentRows(rows *sql.Rows) (models.Agent, error) {
	return scanAgentRow(rows)
}

func scanAgentRow(row scanner) (models.Agent, error) {
	var a models.Agent
	var memory string
	var createdAt, updatedAt int64
	if err := row.Scan(&a.ID, &a.Name, &a.SystemPrompt, &a.Provider, &a.Model, &a.Temperature,
		&a.TurnLimit, &a.LLMCallCount, &memory, &createdAt, &updatedAt); err != nil {
		return models.Agent{}, translateNotFoundErr(err)
	}
	if err := json.Unmarshal([]byte(memory), &a.Memory); err != nil {
		return models.Agent{}, err
	}
	a.CreatedAt = time.Unix(0, createdAt)
	a.UpdatedAt = time.Unix(0, updatedAt)
	return a, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func translateNotFoundErr(err error) error {
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}

// translateUniqueErr maps a SQLite UNIQUE/PRIMARY KEY constraint violation to
// ErrAlreadyExists. modernc.org/sqlite wraps the underlying SQLite error
// message rather than a typed sentinel, so this matches on message content —
// the same pragmatic approach the teacher uses for driver-specific error
// classification elsewhere in the pack.
func translateUniqueErr(err error) error {
	if err == nil {
		return nil
	}
	if containsAny(err.Error(), "UNIQUE constraint failed", "constraint failed: PRIMARY KEY") {
		return ErrAlreadyExists
	}
	return err
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(s) >= len(sub) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
