package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-post-scheduler/internal/config"
	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/repo"
	"github.com/tbourn/go-post-scheduler/internal/services"
)

var now0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const future = "2025-06-02T09:00:00Z"

func newTestHandler(t *testing.T) (*Handler, *repo.PostStore, *services.PostService) {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "mcp.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close(db) })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := repo.NewPostStore(db)
	store.Now = func() time.Time { return now0 }
	svc := services.NewPostService(store, config.PostsConfig{MaxRunes: 50, ListDefaultLimit: 10, ListMaxLimit: 20}, 3)
	svc.Now = func() time.Time { return now0 }
	return NewHandler(svc, zerolog.Nop()), store, svc
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T", res.Content[0])
	}
	return tc.Text
}

func mustOK(t *testing.T, res *mcp.CallToolResult, err error) *mcp.CallToolResult {
	t.Helper()
	if err != nil {
		t.Fatalf("protocol error: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", text(t, res))
	}
	return res
}

func mustToolError(t *testing.T, res *mcp.CallToolResult, err error, want string) {
	t.Helper()
	if err != nil {
		t.Fatalf("protocol error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error, got %+v", res.StructuredContent)
	}
	if got := text(t, res); !strings.Contains(got, want) {
		t.Fatalf("error text = %q, want it to contain %q", got, want)
	}
}

func schedule(t *testing.T, h *Handler, content string) ScheduleResult {
	t.Helper()
	res, err := h.handleSchedule(context.Background(), call(ToolSchedule, map[string]any{
		"content":        content,
		"scheduled_time": future,
	}))
	mustOK(t, res, err)
	out, ok := res.StructuredContent.(ScheduleResult)
	if !ok {
		t.Fatalf("structured = %T", res.StructuredContent)
	}
	return out
}

func TestSchedule_Success(t *testing.T) {
	h, _, _ := newTestHandler(t)

	res, err := h.handleSchedule(context.Background(), call(ToolSchedule, map[string]any{
		"content":        "  hello world ",
		"scheduled_time": future,
		"link_url":       "https://example.com/a",
		"visibility":     "CONNECTIONS",
	}))
	mustOK(t, res, err)

	out := res.StructuredContent.(ScheduleResult)
	if out.ID == "" || out.Status != domain.StatusPending {
		t.Fatalf("unexpected result: %+v", out)
	}
	if !out.ScheduledTime.Equal(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("scheduled_time = %v", out.ScheduledTime)
	}
	if !strings.Contains(text(t, res), out.ID) {
		t.Fatalf("fallback text should mention id: %q", text(t, res))
	}
}

func TestSchedule_Errors(t *testing.T) {
	h, _, _ := newTestHandler(t)

	cases := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing content", map[string]any{"scheduled_time": future}, "content"},
		{"missing time", map[string]any{"content": "x"}, "scheduled_time"},
		{"bad time", map[string]any{"content": "x", "scheduled_time": "tomorrow"}, "RFC 3339"},
		{"past time", map[string]any{"content": "x", "scheduled_time": "2025-06-01T11:00:00Z"}, "not after"},
		{"blank content", map[string]any{"content": "   ", "scheduled_time": future}, "empty"},
		{"bad visibility", map[string]any{"content": "x", "scheduled_time": future, "visibility": "FRIENDS"}, "visibility"},
		{"bad link", map[string]any{"content": "x", "scheduled_time": future, "link_url": "ftp://x"}, "link_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := h.handleSchedule(context.Background(), call(ToolSchedule, tc.args))
			mustToolError(t, res, err, tc.want)
		})
	}
}

func TestList_FilterAndLimit(t *testing.T) {
	h, _, _ := newTestHandler(t)
	a := schedule(t, h, "a")
	schedule(t, h, "b")
	schedule(t, h, "c")

	res, err := h.handleCancel(context.Background(), call(ToolCancel, map[string]any{"id": a.ID}))
	mustOK(t, res, err)

	res, err = h.handleList(context.Background(), call(ToolList, map[string]any{"status": "pending"}))
	mustOK(t, res, err)
	if got := res.StructuredContent.(ListResult); got.Count != 2 {
		t.Fatalf("pending count = %d, want 2", got.Count)
	}

	res, err = h.handleList(context.Background(), call(ToolList, map[string]any{"limit": float64(1)}))
	mustOK(t, res, err)
	if got := res.StructuredContent.(ListResult); got.Count != 1 || len(got.Posts) != 1 {
		t.Fatalf("limited list = %+v", got)
	}

	res, err = h.handleList(context.Background(), call(ToolList, map[string]any{"status": "bogus"}))
	mustToolError(t, res, err, "status")
}

func TestGet_SummaryAndNotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)
	p := schedule(t, h, "hello")

	res, err := h.handleGet(context.Background(), call(ToolGet, map[string]any{"id": p.ID}))
	mustOK(t, res, err)
	got := res.StructuredContent.(GetResult)
	if got.Post.ID != p.ID || got.Summary == "" {
		t.Fatalf("unexpected get result: %+v", got)
	}
	if text(t, res) != got.Summary {
		t.Fatalf("fallback text should be the summary")
	}

	res, err = h.handleGet(context.Background(), call(ToolGet, map[string]any{"id": "nope"}))
	mustToolError(t, res, err, "not found")

	res, err = h.handleGet(context.Background(), call(ToolGet, map[string]any{}))
	mustToolError(t, res, err, "id")
}

func TestCancel_States(t *testing.T) {
	h, store, _ := newTestHandler(t)
	ctx := context.Background()
	p := schedule(t, h, "x")

	res, err := h.handleCancel(ctx, call(ToolCancel, map[string]any{"id": p.ID}))
	mustOK(t, res, err)
	if got := res.StructuredContent.(*domain.ScheduledPost); got.Status != domain.StatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}

	res, err = h.handleCancel(ctx, call(ToolCancel, map[string]any{"id": p.ID}))
	mustToolError(t, res, err, "not cancellable")

	q := schedule(t, h, "y")
	if claimed, err := store.BeginPublish(ctx, q.ID); err != nil || claimed == nil {
		t.Fatalf("claim: %v %v", claimed, err)
	}
	res, err = h.handleCancel(ctx, call(ToolCancel, map[string]any{"id": q.ID}))
	mustToolError(t, res, err, "being published")
}

func TestReschedule(t *testing.T) {
	h, _, _ := newTestHandler(t)
	ctx := context.Background()
	p := schedule(t, h, "x")

	res, err := h.handleReschedule(ctx, call(ToolReschedule, map[string]any{"id": p.ID, "scheduled_time": "2025-06-03T10:30:00Z"}))
	mustOK(t, res, err)
	got := res.StructuredContent.(*domain.ScheduledPost)
	if !got.ScheduledTime.Equal(time.Date(2025, 6, 3, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("scheduled_time = %v", got.ScheduledTime)
	}

	res, err = h.handleReschedule(ctx, call(ToolReschedule, map[string]any{"id": p.ID, "scheduled_time": "2020-01-01T00:00:00Z"}))
	mustToolError(t, res, err, "not after")

	res, err = h.handleReschedule(ctx, call(ToolReschedule, map[string]any{"id": p.ID}))
	mustToolError(t, res, err, "scheduled_time")

	res, err = h.handleCancel(ctx, call(ToolCancel, map[string]any{"id": p.ID}))
	mustOK(t, res, err)
	res, err = h.handleReschedule(ctx, call(ToolReschedule, map[string]any{"id": p.ID, "scheduled_time": future}))
	mustToolError(t, res, err, "not reschedulable")
}

func TestRetry(t *testing.T) {
	h, store, _ := newTestHandler(t)
	ctx := context.Background()
	p := schedule(t, h, "x")

	res, err := h.handleRetry(ctx, call(ToolRetry, map[string]any{"id": p.ID}))
	mustToolError(t, res, err, "only failed")

	if _, err := store.BeginPublish(ctx, p.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.MarkFailed(ctx, p.ID, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	res, err = h.handleRetry(ctx, call(ToolRetry, map[string]any{"id": p.ID}))
	mustOK(t, res, err)
	got := res.StructuredContent.(*domain.ScheduledPost)
	if got.Status != domain.StatusPending || got.RetryCount != 0 {
		t.Fatalf("after retry: status=%s retries=%d", got.Status, got.RetryCount)
	}
}

func TestDelete(t *testing.T) {
	h, store, _ := newTestHandler(t)
	ctx := context.Background()
	p := schedule(t, h, "x")

	q := schedule(t, h, "y")
	if _, err := store.BeginPublish(ctx, q.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	res, err := h.handleDelete(ctx, call(ToolDelete, map[string]any{"id": q.ID}))
	mustToolError(t, res, err, "being published")

	res, err = h.handleDelete(ctx, call(ToolDelete, map[string]any{"id": p.ID}))
	mustOK(t, res, err)
	if got := res.StructuredContent.(DeleteResult); !got.Deleted || got.ID != p.ID {
		t.Fatalf("delete result = %+v", got)
	}

	res, err = h.handleDelete(ctx, call(ToolDelete, map[string]any{"id": p.ID}))
	mustToolError(t, res, err, "not found")
}

func TestStats(t *testing.T) {
	h, _, _ := newTestHandler(t)
	ctx := context.Background()
	a := schedule(t, h, "a")
	schedule(t, h, "b")
	res, err := h.handleCancel(ctx, call(ToolCancel, map[string]any{"id": a.ID}))
	mustOK(t, res, err)

	res, err = h.handleStats(ctx, call(ToolStats, nil))
	mustOK(t, res, err)
	got := res.StructuredContent.(StatsResult)
	if got.Counts["pending"] != 1 || got.Counts["cancelled"] != 1 || got.Counts["failed"] != 0 || got.Total != 2 {
		t.Fatalf("stats = %+v", got)
	}
	if got.NextDue == nil || !got.NextDue.Equal(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("next_due = %v", got.NextDue)
	}
	if !strings.Contains(text(t, res), "pending=1") {
		t.Fatalf("fallback text = %q", text(t, res))
	}
}

type brokenService struct{ PostService }

func (brokenService) Stats(context.Context) (*services.Stats, error) {
	return nil, errors.New("disk on fire")
}

func TestToolError_HidesInternalDetail(t *testing.T) {
	h := NewHandler(brokenService{}, zerolog.Nop())
	res, err := h.handleStats(context.Background(), call(ToolStats, nil))
	mustToolError(t, res, err, "internal error")
	if strings.Contains(text(t, res), "disk on fire") {
		t.Fatalf("internal detail leaked: %q", text(t, res))
	}
}

func rpc(t *testing.T, h interface {
	HandleMessage(context.Context, json.RawMessage) mcp.JSONRPCMessage
}, msg string) string {
	t.Helper()
	out, err := json.Marshal(h.HandleMessage(context.Background(), json.RawMessage(msg)))
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return string(out)
}

func TestNewServer_ListsAndCallsTools(t *testing.T) {
	_, _, svc := newTestHandler(t)
	s := NewServer(svc, "test", zerolog.Nop())

	rpc(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`)

	list := rpc(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	for _, name := range []string{ToolSchedule, ToolList, ToolGet, ToolCancel, ToolReschedule, ToolRetry, ToolDelete, ToolStats} {
		if !strings.Contains(list, `"`+name+`"`) {
			t.Errorf("tools/list missing %s: %s", name, list)
		}
	}

	got := rpc(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"schedule_post","arguments":{"content":"via rpc","scheduled_time":"`+future+`"}}}`)
	if !strings.Contains(got, `"status":"pending"`) {
		t.Fatalf("tools/call response = %s", got)
	}
}
