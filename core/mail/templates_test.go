package mail

import (
	"context"
	"strings"
	"testing"
)

func TestRenderShareProducesLink(t *testing.T) {
	html, err := RenderShare(ShareNotice{RecipientName: "Bob", SharerName: "Alice", Kind: "document", ItemName: "plan.pdf", Link: "https://drive.test/drive/shared/document/1"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, `<a href="https://drive.test/drive/shared/document/1">`) {
		t.Fatalf("missing link: %s", html)
	}
	if !strings.Contains(html, "<strong>Alice</strong>") {
		t.Fatalf("missing sharer: %s", html)
	}
}

func TestRecorderKeepsMessages(t *testing.T) {
	r := &Recorder{}
	if err := r.Send(context.Background(), Message{To: "a@b.c", Subject: "s"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := r.Messages(); len(got) != 1 || got[0].To != "a@b.c" {
		t.Fatalf("unexpected messages: %+v", got)
	}
}
