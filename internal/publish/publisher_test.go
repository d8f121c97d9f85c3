package publish

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-post-scheduler/internal/config"
	"github.com/tbourn/go-post-scheduler/internal/domain"
)

func TestNew_SelectsPublisher(t *testing.T) {
	log := zerolog.Nop()

	p, err := New(config.Config{Publisher: "dryrun"}, log)
	if _, ok := p.(*DryRun); err != nil || !ok {
		t.Fatalf("dryrun: got %T, %v", p, err)
	}
	p, err = New(config.Config{Publisher: "linkedin", LinkedIn: config.LinkedInConfig{RPS: 1}}, log)
	if _, ok := p.(*LinkedIn); err != nil || !ok {
		t.Fatalf("linkedin: got %T, %v", p, err)
	}
	if _, err := New(config.Config{Publisher: "fax"}, log); err == nil {
		t.Fatalf("expected error for unknown publisher")
	}
}

func TestDryRun_ReturnsSyntheticIDAndLogs(t *testing.T) {
	var buf bytes.Buffer
	d := NewDryRun(zerolog.New(&buf))
	link := "https://example.com"

	id, err := d.Publish(context.Background(), domain.ScheduledPost{ID: "p1", Content: "hello", LinkURL: &link})
	if err != nil || !strings.HasPrefix(id, "dryrun-") {
		t.Fatalf("Publish = %q, %v", id, err)
	}
	out := buf.String()
	if !strings.Contains(out, `"post_id":"p1"`) || !strings.Contains(out, `"link_url":"https://example.com"`) {
		t.Fatalf("unexpected log: %s", out)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Publish(ctx, domain.ScheduledPost{}); err == nil {
		t.Fatalf("expected ctx error")
	}
}

func TestFunc_Adapter(t *testing.T) {
	var p Publisher = Func(func(_ context.Context, post domain.ScheduledPost) (string, error) {
		return "ext-" + post.ID, nil
	})
	if id, _ := p.Publish(context.Background(), domain.ScheduledPost{ID: "1"}); id != "ext-1" {
		t.Fatalf("Func adapter returned %q", id)
	}
}

func TestParsePreview_Fallbacks(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><head>
		<title> Plain Title </title>
		<meta name="description" content="desc">
		<meta property="og:image" content="https://img">
	</head><body></body></html>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p := ParsePreview(doc)
	if p.Title != "Plain Title" || p.Description != "desc" || p.Image != "https://img" {
		t.Fatalf("unexpected preview: %+v", p)
	}
}
