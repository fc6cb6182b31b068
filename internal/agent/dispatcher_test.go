package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"taskbot/internal/domain"
)

type fakeTransport struct {
	name    string
	selfID  string
	sends   []string
	fail    int // number of sends that fail before succeeding
	nextID  int
	started bool
}

func (f *fakeTransport) Name() string   { return f.name }
func (f *fakeTransport) SelfID() string { return f.selfID }

func (f *fakeTransport) Start(ctx context.Context, bus domain.MessageBus) error {
	f.started = true
	return nil
}

func (f *fakeTransport) Stop() error { return nil }

func (f *fakeTransport) Send(ctx context.Context, chatID, content string) (string, error) {
	if f.fail > 0 {
		f.fail--
		return "", errors.New("network down")
	}
	f.nextID++
	f.sends = append(f.sends, content)
	return "msg-" + strconv.Itoa(f.nextID), nil
}

func newTestDispatcher(t *fakeTransport) *Dispatcher {
	d := NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.sleep = func(time.Duration) {}
	if t != nil {
		d.Register(t)
	}
	return d
}

func TestDispatcherSendSuccess(t *testing.T) {
	tr := &fakeTransport{name: "telegram"}
	d := newTestDispatcher(tr)

	if err := d.Send(context.Background(), "telegram", "42", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(tr.sends) != 1 || tr.sends[0] != "hello" {
		t.Fatalf("sends = %v", tr.sends)
	}
}

func TestDispatcherRetriesOnce(t *testing.T) {
	tr := &fakeTransport{name: "telegram", fail: 1}
	d := newTestDispatcher(tr)

	var slept time.Duration
	d.sleep = func(dur time.Duration) { slept = dur }

	if err := d.Send(context.Background(), "telegram", "42", "hi"); err != nil {
		t.Fatalf("Send after one failure: %v", err)
	}
	if slept != sendRetryDelay {
		t.Fatalf("slept %v, want %v", slept, sendRetryDelay)
	}
	if len(tr.sends) != 1 {
		t.Fatalf("sends = %v", tr.sends)
	}
}

func TestDispatcherGivesUpAfterSecondFailure(t *testing.T) {
	tr := &fakeTransport{name: "telegram", fail: 2}
	d := newTestDispatcher(tr)

	err := d.Send(context.Background(), "telegram", "42", "hi")
	if err == nil {
		t.Fatal("expected error after two failed sends")
	}
	if len(tr.sends) != 0 {
		t.Fatalf("message delivered despite failures: %v", tr.sends)
	}
}

func TestDispatcherUnknownChannel(t *testing.T) {
	d := newTestDispatcher(nil)
	if err := d.Send(context.Background(), "pigeon", "1", "x"); err == nil {
		t.Fatal("expected error for unregistered channel")
	}
}

func TestDispatcherEchoByMessageID(t *testing.T) {
	tr := &fakeTransport{name: "telegram"}
	d := newTestDispatcher(tr)

	if err := d.Send(context.Background(), "telegram", "42", "reply"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	echo := domain.InboundMessage{Channel: "telegram", MessageID: "msg-1", SenderID: "someone"}
	if !d.IsEcho(echo) {
		t.Fatal("our own message not recognized as echo")
	}
	other := domain.InboundMessage{Channel: "telegram", MessageID: "msg-99", SenderID: "someone"}
	if d.IsEcho(other) {
		t.Fatal("foreign message flagged as echo")
	}
}

func TestDispatcherEchoBySenderID(t *testing.T) {
	tr := &fakeTransport{name: "telegram", selfID: "bot-1"}
	d := newTestDispatcher(tr)

	if !d.IsEcho(domain.InboundMessage{Channel: "telegram", SenderID: "bot-1"}) {
		t.Fatal("message from our own account not recognized as echo")
	}
	if d.IsEcho(domain.InboundMessage{Channel: "telegram", SenderID: "user-7"}) {
		t.Fatal("user message flagged as echo")
	}
}
