// session.go: 会话 + 轮次 CRUD, 实现 chatstate.SessionAPI / chatstate.TurnArchiver。
package store

import (
	"context"
	"encoding/json"
	"strings"

	stderrors "errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datalab-agent/analyst-go/internal/chatstate"
	apperrors "github.com/datalab-agent/analyst-go/pkg/errors"
	"github.com/datalab-agent/analyst-go/pkg/logger"
	"github.com/datalab-agent/analyst-go/pkg/util"
)

// DefaultTitleRunes 默认标题截断长度 (rune)。
const DefaultTitleRunes = 20

// SessionStore 会话存储。
type SessionStore struct {
	BaseStore
	titleRunes int
}

var (
	_ chatstate.SessionAPI   = (*SessionStore)(nil)
	_ chatstate.TurnArchiver = (*SessionStore)(nil)
)

// NewSessionStore 创建会话存储。titleRunes <= 0 时使用 DefaultTitleRunes。
func NewSessionStore(pool *pgxpool.Pool, titleRunes int) *SessionStore {
	if titleRunes <= 0 {
		titleRunes = DefaultTitleRunes
	}
	return &SessionStore{BaseStore: NewBaseStore(pool), titleRunes: titleRunes}
}

const sessionCols = `id, name, dataset_id, created_at, updated_at`

// Create 新建会话, id 由 uuid 生成。
func (s *SessionStore) Create(ctx context.Context, name, datasetID string) (*ChatSession, error) {
	const op = "SessionStore.Create"
	datasetID = strings.TrimSpace(datasetID)
	if datasetID == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, op, "dataset id is required")
	}
	rows, err := s.pool.Query(ctx,
		`INSERT INTO chat_sessions (id, name, dataset_id) VALUES ($1, $2, $3)
		 RETURNING `+sessionCols,
		uuid.NewString(), strings.TrimSpace(name), datasetID)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "insert session")
	}
	sess, err := collectOne[ChatSession](rows)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "scan session")
	}
	logger.Info("store: session created", logger.FieldSessionID, sess.ID, logger.FieldDatasetID, datasetID)
	return sess, nil
}

// SessionListParams 会话列表过滤。
type SessionListParams struct {
	DatasetID string
	Keyword   string
	Limit     int
}

// List 按最近更新排序列出会话。
func (s *SessionStore) List(ctx context.Context, p SessionListParams) ([]ChatSession, error) {
	sql, params := NewQueryBuilder().
		Eq("dataset_id", p.DatasetID).
		KeywordLike(p.Keyword, "name", "id").
		Build("SELECT "+sessionCols+" FROM chat_sessions", "updated_at DESC, id", p.Limit)
	rows, err := s.pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, apperrors.Wrap(err, "SessionStore.List", "query sessions")
	}
	return collectRows[ChatSession](rows)
}

// Datasets 返回已出现过的数据集 id。
func (s *SessionStore) Datasets(ctx context.Context) ([]string, error) {
	return DistinctValues(ctx, s.pool, "chat_sessions", "dataset_id")
}

// Delete 删除会话 (轮次级联删除)。
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	n, err := deleteByKey(ctx, s.pool, "chat_sessions", "id", id)
	if err != nil {
		return apperrors.Wrap(err, "SessionStore.Delete", "delete session")
	}
	if n == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "SessionStore.Delete", "session not found")
	}
	return nil
}

// GetSession 读取会话元数据与按顺序排列的全部轮次。
func (s *SessionStore) GetSession(ctx context.Context, id string) (*chatstate.SessionRecord, error) {
	const op = "SessionStore.GetSession"
	rows, err := s.pool.Query(ctx, "SELECT "+sessionCols+" FROM chat_sessions WHERE id = $1", id)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "query session")
	}
	sess, err := collectOne[ChatSession](rows)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "scan session")
	}
	if sess == nil {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, op, "session not found")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT turn_id, ts, user_message, content, tool_calls
		 FROM chat_turns WHERE session_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "query turns")
	}
	turnRows, err := collectRows[chatTurnRow](rows)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "scan turns")
	}

	rec := &chatstate.SessionRecord{
		ID:          sess.ID,
		Name:        sess.Name,
		DatasetID:   sess.DatasetID,
		ChatHistory: make([]chatstate.TurnRecord, 0, len(turnRows)),
	}
	for _, row := range turnRows {
		rec.ChatHistory = append(rec.ChatHistory, row.toRecord())
	}
	return rec, nil
}

// UpdateSessionName 修改会话标题。
func (s *SessionStore) UpdateSessionName(ctx context.Context, id, name string) error {
	const op = "SessionStore.UpdateSessionName"
	tag, err := s.pool.Exec(ctx,
		`UPDATE chat_sessions SET name = $2, updated_at = NOW() WHERE id = $1`,
		id, strings.TrimSpace(name))
	if err != nil {
		return apperrors.Wrap(err, op, "update session name")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, op, "session not found")
	}
	return nil
}

// upsertSessionSQL 会话不存在时以 (id, name, dataset_id) 创建;
// 已存在时只补齐空的标题与数据集。
const upsertSessionSQL = `INSERT INTO chat_sessions (id, name, dataset_id) VALUES ($1, $2, $3)
 ON CONFLICT (id) DO UPDATE SET
	name = CASE WHEN chat_sessions.name = '' THEN EXCLUDED.name ELSE chat_sessions.name END,
	dataset_id = CASE WHEN chat_sessions.dataset_id = '' THEN EXCLUDED.dataset_id ELSE chat_sessions.dataset_id END,
	updated_at = NOW()`

// AppendTurn 写入一轮对话 (同 turn id 覆盖)。会话不存在时自动创建;
// 会话尚无标题时以首条用户消息截断作为默认标题, 尚无数据集时记录本轮数据集。
func (s *SessionStore) AppendTurn(ctx context.Context, sessionID, datasetID string, rec chatstate.TurnRecord) error {
	const op = "SessionStore.AppendTurn"
	if strings.TrimSpace(sessionID) == "" || rec.ID == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, op, "session id and turn id are required")
	}
	content, toolCalls := encodeTurn(rec)
	title := DefaultTitle(rec.UserMessage, s.titleRunes)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.Wrap(err, op, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, upsertSessionSQL, sessionID, title, strings.TrimSpace(datasetID)); err != nil {
		return apperrors.Wrap(err, op, "upsert session")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO chat_turns (session_id, turn_id, ts, user_message, content, tool_calls)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id, turn_id) DO UPDATE SET
			content = EXCLUDED.content,
			tool_calls = EXCLUDED.tool_calls`,
		sessionID, rec.ID, rec.Timestamp, rec.UserMessage, content, toolCalls); err != nil {
		return apperrors.Wrap(err, op, "insert turn")
	}
	if err := tx.Commit(ctx); err != nil {
		return apperrors.Wrap(err, op, "commit")
	}
	return nil
}

// DefaultTitle 以首条用户消息生成默认标题: 折叠空白后按 rune 截断。
func DefaultTitle(userMessage string, limit int) string {
	return util.TruncateRunes(strings.Join(strings.Fields(userMessage), " "), limit)
}

// encodeTurn 将 content / tool_calls 序列化为 JSONB 参数, nil 归一为空集合。
func encodeTurn(rec chatstate.TurnRecord) (content, toolCalls []byte) {
	parts := rec.Content
	if parts == nil {
		parts = []chatstate.ContentPart{}
	}
	calls := rec.ToolCalls
	if calls == nil {
		calls = map[string]chatstate.ToolCallState{}
	}
	return mustMarshalJSON(parts), mustMarshalJSON(calls)
}

// toRecord 解码 JSONB 列; 损坏的列记录告警后按空处理。
func (r chatTurnRow) toRecord() chatstate.TurnRecord {
	rec := chatstate.TurnRecord{
		ID:          r.TurnID,
		Timestamp:   r.Ts,
		UserMessage: r.UserMessage,
		Content:     []chatstate.ContentPart{},
		ToolCalls:   map[string]chatstate.ToolCallState{},
	}
	if len(r.Content) > 0 {
		if err := json.Unmarshal(r.Content, &rec.Content); err != nil {
			logger.Warn("store: decode turn content failed", logger.FieldTurnID, r.TurnID, logger.FieldError, err)
			rec.Content = []chatstate.ContentPart{}
		}
	}
	if len(r.ToolCalls) > 0 {
		if err := json.Unmarshal(r.ToolCalls, &rec.ToolCalls); err != nil {
			logger.Warn("store: decode turn tool calls failed", logger.FieldTurnID, r.TurnID, logger.FieldError, err)
			rec.ToolCalls = map[string]chatstate.ToolCallState{}
		}
	}
	return rec
}

// IsNotFound 判断错误是否为会话不存在 (含 pgx.ErrNoRows)。
func IsNotFound(err error) bool {
	return stderrors.Is(err, apperrors.ErrNotFound) || stderrors.Is(err, pgx.ErrNoRows)
}
