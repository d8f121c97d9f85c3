// Package mcp exposes the scheduled-post operations as MCP tools. Each tool
// takes a flat argument object, calls the post service and returns a
// structured result. Domain failures (validation, not found, wrong state)
// come back as tool errors so the calling agent can read and correct them;
// they are never protocol errors.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/services"
)

// Tool names.
const (
	ToolSchedule   = "schedule_post"
	ToolList       = "list_scheduled_posts"
	ToolGet        = "get_scheduled_post"
	ToolCancel     = "cancel_scheduled_post"
	ToolReschedule = "reschedule_scheduled_post"
	ToolRetry      = "retry_scheduled_post"
	ToolDelete     = "delete_scheduled_post"
	ToolStats      = "scheduler_stats"
)

// PostService is the set of operations the tools call.
type PostService interface {
	Schedule(ctx context.Context, in services.ScheduleInput) (*domain.ScheduledPost, error)
	List(ctx context.Context, status string, limit int) ([]domain.ScheduledPost, error)
	Get(ctx context.Context, id string) (*services.PostDetails, error)
	Cancel(ctx context.Context, id string) (*domain.ScheduledPost, error)
	Reschedule(ctx context.Context, id string, at time.Time) (*domain.ScheduledPost, error)
	Retry(ctx context.Context, id string) (*domain.ScheduledPost, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*services.Stats, error)
}

// ScheduleResult is returned by schedule_post.
type ScheduleResult struct {
	ID            string            `json:"id"`
	ScheduledTime time.Time         `json:"scheduled_time"`
	Status        domain.PostStatus `json:"status"`
}

// ListResult is returned by list_scheduled_posts.
type ListResult struct {
	Posts []domain.ScheduledPost `json:"posts"`
	Count int                    `json:"count"`
}

// GetResult is returned by get_scheduled_post.
type GetResult struct {
	Post    domain.ScheduledPost `json:"post"`
	Summary string               `json:"summary"`
}

// DeleteResult is returned by delete_scheduled_post.
type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// StatsResult is returned by scheduler_stats.
type StatsResult struct {
	Counts  map[string]int64 `json:"counts"`
	Total   int64            `json:"total"`
	NextDue *time.Time       `json:"next_due,omitempty"`
}

// Handler holds the tool implementations.
type Handler struct {
	svc PostService
	log zerolog.Logger
}

// NewHandler returns a Handler calling svc.
func NewHandler(svc PostService, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// AddTools registers every tool on s.
func (h *Handler) AddTools(s *server.MCPServer) {
	s.AddTool(toolSchedule(), h.handleSchedule)
	s.AddTool(toolList(), h.handleList)
	s.AddTool(toolGet(), h.handleGet)
	s.AddTool(toolCancel(), h.handleCancel)
	s.AddTool(toolReschedule(), h.handleReschedule)
	s.AddTool(toolRetry(), h.handleRetry)
	s.AddTool(toolDelete(), h.handleDelete)
	s.AddTool(toolStats(), h.handleStats)
}

func visibilityNames() []string {
	out := make([]string, len(domain.Visibilities))
	for i, v := range domain.Visibilities {
		out[i] = string(v)
	}
	return out
}

func idParam() mcp.ToolOption {
	return mcp.WithString("id",
		mcp.Description("The scheduled post id."),
		mcp.Required(),
	)
}

func toolSchedule() mcp.Tool {
	return mcp.NewTool(
		ToolSchedule,
		mcp.WithDescription("Queue a post for publication at a future time. The background daemon publishes it once scheduled_time has passed."),
		mcp.WithTitleAnnotation("Schedule Post"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("content",
			mcp.Description("Post text."),
			mcp.Required(),
		),
		mcp.WithString("scheduled_time",
			mcp.Description("RFC 3339 timestamp strictly in the future, e.g. 2030-01-02T09:00:00Z."),
			mcp.Required(),
		),
		mcp.WithString("link_url",
			mcp.Description("Optional absolute http(s) URL shared as an article."),
		),
		mcp.WithString("visibility",
			mcp.Description("Audience of the post. Defaults to PUBLIC."),
			mcp.Enum(visibilityNames()...),
		),
	)
}

func (h *Handler) handleSchedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := request.RequireString("scheduled_time")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	at, err := services.ParseScheduledTime(raw)
	if err != nil {
		return h.toolError(ToolSchedule, err), nil
	}

	p, err := h.svc.Schedule(ctx, services.ScheduleInput{
		Content:       content,
		ScheduledTime: at,
		LinkURL:       request.GetString("link_url", ""),
		Visibility:    request.GetString("visibility", ""),
	})
	if err != nil {
		return h.toolError(ToolSchedule, err), nil
	}

	res := ScheduleResult{ID: p.ID, ScheduledTime: p.ScheduledTime, Status: p.Status}
	fallback := fmt.Sprintf("Scheduled post %s for %s", p.ID, p.ScheduledTime.Format(time.RFC3339))
	return mcp.NewToolResultStructured(res, fallback), nil
}

func toolList() mcp.Tool {
	statuses := []string{
		string(domain.StatusPending),
		string(domain.StatusPublished),
		string(domain.StatusFailed),
		string(domain.StatusCancelled),
	}
	return mcp.NewTool(
		ToolList,
		mcp.WithDescription("List scheduled posts, oldest scheduled_time first, optionally filtered by status."),
		mcp.WithTitleAnnotation("List Scheduled Posts"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("status",
			mcp.Description("Only return posts in this status."),
			mcp.Enum(statuses...),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of posts to return."),
			mcp.Min(1),
		),
	)
}

func (h *Handler) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	posts, err := h.svc.List(ctx, request.GetString("status", ""), request.GetInt("limit", 0))
	if err != nil {
		return h.toolError(ToolList, err), nil
	}
	return mcp.NewToolResultStructured(ListResult{Posts: posts, Count: len(posts)}, fmt.Sprintf("Found %d posts", len(posts))), nil
}

func toolGet() mcp.Tool {
	return mcp.NewTool(
		ToolGet,
		mcp.WithDescription("Get one scheduled post with a human-readable status summary, including the last error and retry count of failed attempts."),
		mcp.WithTitleAnnotation("Get Scheduled Post"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		idParam(),
	)
}

func (h *Handler) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := h.svc.Get(ctx, id)
	if err != nil {
		return h.toolError(ToolGet, err), nil
	}
	return mcp.NewToolResultStructured(GetResult{Post: d.Post, Summary: d.Summary}, d.Summary), nil
}

func toolCancel() mcp.Tool {
	return mcp.NewTool(
		ToolCancel,
		mcp.WithDescription("Cancel a pending post. Published, failed and cancelled posts cannot be cancelled."),
		mcp.WithTitleAnnotation("Cancel Scheduled Post"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		idParam(),
	)
}

func (h *Handler) handleCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := h.svc.Cancel(ctx, id)
	if err != nil {
		return h.toolError(ToolCancel, err), nil
	}
	return mcp.NewToolResultStructured(p, fmt.Sprintf("Cancelled post %s", p.ID)), nil
}

func toolReschedule() mcp.Tool {
	return mcp.NewTool(
		ToolReschedule,
		mcp.WithDescription("Move a pending post to a new future time."),
		mcp.WithTitleAnnotation("Reschedule Post"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		idParam(),
		mcp.WithString("scheduled_time",
			mcp.Description("New RFC 3339 timestamp, strictly in the future."),
			mcp.Required(),
		),
	)
}

func (h *Handler) handleReschedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := request.RequireString("scheduled_time")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	at, err := services.ParseScheduledTime(raw)
	if err != nil {
		return h.toolError(ToolReschedule, err), nil
	}
	p, err := h.svc.Reschedule(ctx, id, at)
	if err != nil {
		return h.toolError(ToolReschedule, err), nil
	}
	return mcp.NewToolResultStructured(p, fmt.Sprintf("Post %s rescheduled for %s", p.ID, p.ScheduledTime.Format(time.RFC3339))), nil
}

func toolRetry() mcp.Tool {
	return mcp.NewTool(
		ToolRetry,
		mcp.WithDescription("Return a failed post to pending with a fresh retry budget."),
		mcp.WithTitleAnnotation("Retry Failed Post"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		idParam(),
	)
}

func (h *Handler) handleRetry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := h.svc.Retry(ctx, id)
	if err != nil {
		return h.toolError(ToolRetry, err), nil
	}
	return mcp.NewToolResultStructured(p, fmt.Sprintf("Post %s is pending again", p.ID)), nil
}

func toolDelete() mcp.Tool {
	return mcp.NewTool(
		ToolDelete,
		mcp.WithDescription("Permanently delete a post in any state except while it is being published."),
		mcp.WithTitleAnnotation("Delete Scheduled Post"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		idParam(),
	)
}

func (h *Handler) handleDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.svc.Delete(ctx, id); err != nil {
		return h.toolError(ToolDelete, err), nil
	}
	return mcp.NewToolResultStructured(DeleteResult{ID: id, Deleted: true}, fmt.Sprintf("Deleted post %s", id)), nil
}

func toolStats() mcp.Tool {
	return mcp.NewTool(
		ToolStats,
		mcp.WithDescription("Count posts per status and report when the next pending post is due."),
		mcp.WithTitleAnnotation("Scheduler Stats"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

func (h *Handler) handleStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := h.svc.Stats(ctx)
	if err != nil {
		return h.toolError(ToolStats, err), nil
	}
	res := StatsResult{Counts: make(map[string]int64, len(st.Counts)), Total: st.Counts.Total(), NextDue: st.NextDue}
	statuses := []domain.PostStatus{domain.StatusPending, domain.StatusPublished, domain.StatusFailed, domain.StatusCancelled}
	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		res.Counts[string(s)] = st.Counts[s]
		parts = append(parts, fmt.Sprintf("%s=%d", s, st.Counts[s]))
	}
	return mcp.NewToolResultStructured(res, strings.Join(parts, " ")), nil
}

// toolError turns err into a tool-level error result. Storage failures are
// logged and reported without their internal detail.
func (h *Handler) toolError(tool string, err error) *mcp.CallToolResult {
	switch {
	case services.IsValidation(err),
		errors.Is(err, services.ErrPostNotFound),
		errors.Is(err, services.ErrNotCancellable),
		errors.Is(err, services.ErrNotReschedulable),
		errors.Is(err, services.ErrNotRetryable),
		errors.Is(err, services.ErrPublishInProgress):
		return mcp.NewToolResultError(err.Error())
	}
	h.log.Error().Err(err).Str("tool", tool).Msg("tool failed")
	return mcp.NewToolResultError("internal error, see server logs")
}
