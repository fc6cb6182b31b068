package channel

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"taskbot/internal/bus"
	"taskbot/internal/domain"
)

func TestSplitMessageShort(t *testing.T) {
	chunks := splitMessage("hello", 2000)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	msg := strings.Repeat("a", 1500) + "\n" + strings.Repeat("b", 1500)
	chunks := splitMessage(msg, 2000)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "\n") {
		t.Error("first chunk should end at the newline")
	}
	for _, c := range chunks {
		if len(c) > 2000 {
			t.Errorf("chunk length %d exceeds limit", len(c))
		}
	}
}

func TestSplitMessageHardCut(t *testing.T) {
	msg := strings.Repeat("a", 4500)
	chunks := splitMessage(msg, 2000)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks", len(chunks))
	}
}

func TestCLIPublishesInbound(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := bus.New(4, logger)
	defer b.Close()

	in := strings.NewReader("add buy milk\n/quit\n")
	var out strings.Builder
	c := NewCLI(CLIConfig{Logger: logger, In: in, Out: &out})

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background(), b) }()

	select {
	case msg := <-b.Subscribe():
		if msg.Channel != "cli" || msg.Content != "add buy milk" {
			t.Fatalf("msg = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}
	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestCLISendReturnsUniqueIDs(t *testing.T) {
	var out strings.Builder
	c := NewCLI(CLIConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Out: &out})

	id1, err := c.Send(context.Background(), "direct", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	id2, _ := c.Send(context.Background(), "direct", "again")
	if id1 == id2 || id1 == "" {
		t.Fatalf("ids = %q, %q", id1, id2)
	}
	if !strings.Contains(out.String(), "hello") {
		t.Fatalf("output = %q", out.String())
	}
}

var _ domain.Transport = (*CLI)(nil)
var _ domain.Transport = (*Telegram)(nil)
var _ domain.Transport = (*Discord)(nil)
