// Scheduled post HTTP handlers.
//
// This file exposes the REST surface over PostService:
//   - POST   /posts               (schedule, idempotent with Idempotency-Key)
//   - GET    /posts               (list, ?status=&limit=)
//   - GET    /posts/{id}          (details + summary)
//   - PATCH  /posts/{id}          (reschedule)
//   - POST   /posts/{id}/cancel
//   - POST   /posts/{id}/retry
//   - DELETE /posts/{id}
//   - GET    /stats
//
// Handlers stay thin: decode, call the service, map errors via failService.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/http/middleware"
	"github.com/tbourn/go-post-scheduler/internal/services"
	"github.com/tbourn/go-post-scheduler/internal/utils"
)

// HeaderReplayed marks a response served from a stored idempotent result.
const HeaderReplayed = "Idempotency-Replayed"

//
// Service contracts
//

// PostService is the set of post operations consumed by the handlers.
// *services.PostService satisfies it.
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

// IdempotencyStore remembers which post a (client, key) pair created.
type IdempotencyStore interface {
	// Lookup returns the post id recorded for (clientID, key), if unexpired.
	Lookup(ctx context.Context, clientID, key string, now time.Time) (postID string, found bool, err error)
	// Remember records postID for (clientID, key).
	Remember(ctx context.Context, clientID, key, postID string, status int) error
}

// Handlers groups the post endpoints.
type Handlers struct {
	svc  PostService
	idem IdempotencyStore
	now  func() time.Time
}

// New returns Handlers bound to svc. idem may be nil, which disables replay.
func New(svc PostService, idem IdempotencyStore) *Handlers {
	return &Handlers{svc: svc, idem: idem, now: time.Now}
}

//
// DTOs
//

// ScheduleRequest is the payload of POST /posts.
type ScheduleRequest struct {
	// Content is the post body (NFC-normalized, at most POST_MAX_RUNES runes).
	Content string `json:"content" example:"Shipping the scheduler today."`
	// ScheduledTime is an RFC 3339 timestamp strictly in the future.
	ScheduledTime string `json:"scheduled_time" example:"2030-01-02T09:00:00Z"`
	// LinkURL optionally attaches an article.
	LinkURL string `json:"link_url,omitempty" example:"https://example.com/launch"`
	// Visibility is PUBLIC (default), CONNECTIONS, LOGGED_IN or CONTAINER.
	Visibility string `json:"visibility,omitempty" example:"PUBLIC"`
}

// RescheduleRequest is the payload of PATCH /posts/{id}.
type RescheduleRequest struct {
	ScheduledTime string `json:"scheduled_time" example:"2030-01-03T09:00:00Z"`
}

// PostResponse is a post plus its human-readable status summary.
type PostResponse struct {
	Post    domain.ScheduledPost `json:"post"`
	Summary string               `json:"summary" example:"scheduled for 2030-01-02T09:00:00Z (3 days from now)"`
}

// ListPostsResponse wraps a list of posts.
type ListPostsResponse struct {
	Posts []domain.ScheduledPost `json:"posts"`
	Count int                    `json:"count"`
}

// StatsResponse reports queue counts.
type StatsResponse struct {
	Counts  map[string]int64 `json:"counts"`
	Total   int64            `json:"total"`
	NextDue *time.Time       `json:"next_due,omitempty"`
}

//
// Handlers
//

// SchedulePost godoc
// @ID          schedulePost
// @Summary     Schedule a post
// @Description Queues a post for publication at scheduled_time. With an Idempotency-Key, a retried request returns the post created the first time (200, Idempotency-Replayed: true).
// @Tags        Posts
// @Accept      json
// @Produce     json
//
// @Param       X-Client-ID      header  string  false "Client identity scoping idempotency keys"  example(agent-1)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"          example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.ScheduleRequest  true  "Post to schedule"
//
// @Success     201  {object}  domain.ScheduledPost
// @Success     200  {object}  domain.ScheduledPost  "Idempotent replay"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /posts [post]
func (h *Handlers) SchedulePost(c *gin.Context) {
	ctx := c.Request.Context()
	client := middleware.ClientIDFrom(c)
	key, hasKey := middleware.GetIdempotencyKey(c)

	if hasKey && h.idem != nil {
		if prev, found := h.replay(ctx, client, key); found {
			c.Header(HeaderReplayed, "true")
			ok(c, http.StatusOK, prev)
			return
		}
	}

	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	at, err := services.ParseScheduledTime(req.ScheduledTime)
	if err != nil {
		failService(c, err)
		return
	}

	p, err := h.svc.Schedule(ctx, services.ScheduleInput{
		Content:       req.Content,
		ScheduledTime: at,
		LinkURL:       req.LinkURL,
		Visibility:    req.Visibility,
	})
	if err != nil {
		failService(c, err)
		return
	}

	if hasKey && h.idem != nil {
		if err := h.idem.Remember(ctx, client, key, p.ID, http.StatusCreated); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("post_id", p.ID).Msg("idempotency record not stored")
		}
	}
	ok(c, http.StatusCreated, p)
}

// replay returns the post previously created under (client, key). A record
// whose post was since deleted counts as a miss.
func (h *Handlers) replay(ctx context.Context, client, key string) (*domain.ScheduledPost, bool) {
	postID, found, err := h.idem.Lookup(ctx, client, key, h.now().UTC())
	if err != nil || !found {
		return nil, false
	}
	d, err := h.svc.Get(ctx, postID)
	if err != nil {
		return nil, false
	}
	return &d.Post, true
}

// ListPosts godoc
// @ID          listPosts
// @Summary     List scheduled posts
// @Description Returns posts ordered by scheduled_time ascending, optionally filtered by status.
// @Tags        Posts
// @Produce     json
//
// @Param       status  query  string  false  "pending | published | failed | cancelled"
// @Param       limit   query  int     false  "Maximum number of posts (clamped)"  minimum(1)
//
// @Success     200  {object}  handlers.ListPostsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown status"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /posts [get]
func (h *Handlers) ListPosts(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 0)
	posts, err := h.svc.List(c.Request.Context(), c.Query("status"), limit)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ListPostsResponse{Posts: posts, Count: len(posts)})
}

// GetPost godoc
// @ID          getPost
// @Summary     Get a scheduled post
// @Tags        Posts
// @Produce     json
// @Param       id   path  string  true  "Post ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.PostResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /posts/{id} [get]
func (h *Handlers) GetPost(c *gin.Context) {
	d, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, PostResponse{Post: d.Post, Summary: d.Summary})
}

// CancelPost godoc
// @ID          cancelPost
// @Summary     Cancel a pending post
// @Tags        Posts
// @Produce     json
// @Param       id   path  string  true  "Post ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.ScheduledPost
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not pending, or being published"
// @Router      /posts/{id}/cancel [post]
func (h *Handlers) CancelPost(c *gin.Context) {
	p, err := h.svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// ReschedulePost godoc
// @ID          reschedulePost
// @Summary     Move a pending post to a new time
// @Tags        Posts
// @Accept      json
// @Produce     json
// @Param       id    path  string                      true  "Post ID (UUID)"  format(uuid)
// @Param       body  body  handlers.RescheduleRequest  true  "New time"
// @Success     200  {object}  domain.ScheduledPost
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not pending, or being published"
// @Router      /posts/{id} [patch]
func (h *Handlers) ReschedulePost(c *gin.Context) {
	var req RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	at, err := services.ParseScheduledTime(req.ScheduledTime)
	if err != nil {
		failService(c, err)
		return
	}
	p, err := h.svc.Reschedule(c.Request.Context(), c.Param("id"), at)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// RetryPost godoc
// @ID          retryPost
// @Summary     Retry a failed post
// @Description Returns a failed post to pending with a fresh retry budget.
// @Tags        Posts
// @Produce     json
// @Param       id   path  string  true  "Post ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.ScheduledPost
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not failed"
// @Router      /posts/{id}/retry [post]
func (h *Handlers) RetryPost(c *gin.Context) {
	p, err := h.svc.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// DeletePost godoc
// @ID          deletePost
// @Summary     Delete a post
// @Tags        Posts
// @Param       id   path  string  true  "Post ID (UUID)"  format(uuid)
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Being published"
// @Router      /posts/{id} [delete]
func (h *Handlers) DeletePost(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// GetStats godoc
// @ID          getStats
// @Summary     Queue statistics
// @Tags        Posts
// @Produce     json
// @Success     200  {object}  handlers.StatsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /stats [get]
func (h *Handlers) GetStats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		failService(c, err)
		return
	}
	counts := make(map[string]int64, len(st.Counts))
	for s, n := range st.Counts {
		counts[string(s)] = n
	}
	ok(c, http.StatusOK, StatsResponse{Counts: counts, Total: st.Counts.Total(), NextDue: st.NextDue})
}
