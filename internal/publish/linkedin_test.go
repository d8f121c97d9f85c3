package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-post-scheduler/internal/config"
	"github.com/tbourn/go-post-scheduler/internal/domain"
)

func newLinkedInCfg(base string) config.LinkedInConfig {
	return config.LinkedInConfig{
		APIBase:     base,
		AccessToken: "tok",
		AuthorURN:   "urn:li:person:abc",
		Timeout:     5 * time.Second,
		RPS:         1000,
	}
}

func TestLinkedIn_Publish_SendsUGCPostAndReadsHeaderID(t *testing.T) {
	var got ugcPost
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/ugcPosts" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" || r.Header.Get("X-Restli-Protocol-Version") != "2.0.0" {
			t.Errorf("missing auth/protocol headers: %v", r.Header)
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &got); err != nil {
			t.Errorf("bad json body: %v", err)
		}
		w.Header().Set("X-RestLi-Id", "urn:li:share:1")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	l := NewLinkedIn(newLinkedInCfg(srv.URL+"/"), srv.Client())
	id, err := l.Publish(context.Background(), domain.ScheduledPost{ID: "p1", Content: "Launch day!", Visibility: domain.VisibilityConnections})
	if err != nil || id != "urn:li:share:1" {
		t.Fatalf("Publish = %q, %v", id, err)
	}

	share := got.SpecificContent["com.linkedin.ugc.ShareContent"]
	if got.Author != "urn:li:person:abc" || got.LifecycleState != "PUBLISHED" ||
		share.ShareCommentary.Text != "Launch day!" || share.ShareMediaCategory != "NONE" || len(share.Media) != 0 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.Visibility["com.linkedin.ugc.MemberNetworkVisibility"] != "CONNECTIONS" {
		t.Fatalf("visibility not forwarded: %+v", got.Visibility)
	}
}

func TestLinkedIn_Publish_ArticleWithPreview(t *testing.T) {
	var got ugcPost
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><head>
			<meta property="og:title" content="Big News">
			<meta name="description" content="All about it">
		</head></html>`)
	})
	mux.HandleFunc("/v2/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"urn:li:share:2"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newLinkedInCfg(srv.URL)
	cfg.LinkPreview = true
	l := NewLinkedIn(cfg, srv.Client())

	link := srv.URL + "/article"
	id, err := l.Publish(context.Background(), domain.ScheduledPost{Content: "read this", LinkURL: &link})
	if err != nil || id != "urn:li:share:2" {
		t.Fatalf("Publish = %q, %v", id, err)
	}
	share := got.SpecificContent["com.linkedin.ugc.ShareContent"]
	if share.ShareMediaCategory != "ARTICLE" || len(share.Media) != 1 {
		t.Fatalf("expected article media: %+v", share)
	}
	m := share.Media[0]
	if m.OriginalURL != link || m.Title == nil || m.Title.Text != "Big News" || m.Description == nil || m.Description.Text != "All about it" {
		t.Fatalf("unexpected media: %+v", m)
	}
	if got.Visibility["com.linkedin.ugc.MemberNetworkVisibility"] != "PUBLIC" {
		t.Fatalf("empty visibility should default to PUBLIC")
	}
}

func TestLinkedIn_Publish_PreviewFailureIsIgnored(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
	mux.HandleFunc("/v2/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RestLi-Id", "ok")
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newLinkedInCfg(srv.URL)
	cfg.LinkPreview = true
	link := srv.URL + "/gone"
	if id, err := NewLinkedIn(cfg, srv.Client()).Publish(context.Background(), domain.ScheduledPost{Content: "x", LinkURL: &link}); err != nil || id != "ok" {
		t.Fatalf("Publish = %q, %v", id, err)
	}
}

func TestLinkedIn_Publish_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, strings.Repeat("x", 2000))
	}))
	defer srv.Close()

	_, err := NewLinkedIn(newLinkedInCfg(srv.URL), srv.Client()).Publish(context.Background(), domain.ScheduledPost{Content: "x"})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusTooManyRequests {
		t.Fatalf("expected StatusError 429, got %v", err)
	}
	if len(se.Body) != maxErrorSnippet {
		t.Fatalf("body snippet should be truncated to %d, got %d", maxErrorSnippet, len(se.Body))
	}
	if !strings.HasPrefix(se.Error(), "linkedin: status 429") {
		t.Fatalf("unexpected message: %s", se.Error())
	}
}

func TestLinkedIn_Publish_NoID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	_, err := NewLinkedIn(newLinkedInCfg(srv.URL), srv.Client()).Publish(context.Background(), domain.ScheduledPost{Content: "x"})
	if !errors.Is(err, ErrNoExternalID) {
		t.Fatalf("expected ErrNoExternalID, got %v", err)
	}
}

func TestLinkedIn_Publish_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLinkedIn(newLinkedInCfg("http://127.0.0.1:1"), nil).Publish(ctx, domain.ScheduledPost{Content: "x"}); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
