package cp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/danmuck/cpnet/internal/cookie"
	"github.com/danmuck/cpnet/internal/phy"
	"github.com/danmuck/cpnet/internal/protocol"
	"github.com/danmuck/cpnet/internal/testutil/testlog"
)

func readMessage(t *testing.T, ep *phy.MemEndpoint) protocol.Message {
	t.Helper()
	env := readFrame(t, ep)
	msg, err := protocol.Unmarshal(env.Payload)
	if err != nil {
		t.Fatalf("unmarshal %q: %v", env.Payload, err)
	}
	return msg
}

func newTestCookieServer(t *testing.T, ep *phy.MemEndpoint, capacity int) *CookieServer {
	t.Helper()
	cfg := cookie.DefaultConfig()
	cfg.Capacity = capacity
	srv, err := NewCookieServer(ep, cookie.NewStore(cfg), testSession())
	if err != nil {
		t.Fatalf("new cookie server: %v", err)
	}
	return srv
}

func TestCookieServerAnswersEachRequestOnce(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	srv := newTestCookieServer(t, h.cookies, cookie.DefaultCapacity)
	ctx := context.Background()

	deliver(t, h.cookies, h.client, protocol.CookieRequest{})
	if err := srv.ServeOne(ctx); err != nil {
		t.Fatalf("serve: %v", err)
	}
	first, ok := readMessage(t, h.client).(protocol.CookieResponse)
	if !ok || !first.Success {
		t.Fatalf("expected granted cookie, got %+v", first)
	}
	held, ok := srv.Store().Lookup(h.client.LocalAddr().WithProto(phy.ProtoCP).Key())
	if !ok || held.Value != first.Value {
		t.Fatalf("store should hold the issued cookie")
	}

	deliver(t, h.cookies, h.client, protocol.CookieRequest{})
	if err := srv.ServeOne(ctx); err != nil {
		t.Fatalf("serve repeat: %v", err)
	}
	second, ok := readMessage(t, h.client).(protocol.CookieResponse)
	if !ok || second.Success || second.Reason != protocol.ReasonActiveCookieExists {
		t.Fatalf("expected ACTIVE_COOKIE_EXISTS, got %+v", second)
	}
	if h.client.Pending() != 0 {
		t.Fatalf("expected exactly one response per request, %d extra", h.client.Pending())
	}
}

func TestCookieServerCapacity(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	srv := newTestCookieServer(t, h.cookies, cookie.DefaultCapacity)
	ctx := context.Background()

	granted := 0
	var last protocol.CookieResponse
	for i := 0; i < cookie.DefaultCapacity+1; i++ {
		ep, err := h.network.Listen(fmt.Sprintf("peer-%d", i), 6000+i)
		if err != nil {
			t.Fatalf("listen peer %d: %v", i, err)
		}
		deliver(t, h.cookies, ep, protocol.CookieRequest{})
		if err := srv.ServeOne(ctx); err != nil {
			t.Fatalf("serve %d: %v", i, err)
		}
		last = readMessage(t, ep).(protocol.CookieResponse)
		if last.Success {
			granted++
		}
		_ = ep.Close()
	}
	if granted != cookie.DefaultCapacity {
		t.Fatalf("expected %d cookies, got %d", cookie.DefaultCapacity, granted)
	}
	if last.Success || last.Reason != protocol.ReasonTooManyCookies {
		t.Fatalf("expected TOO_MANY_COOKIES for the overflow client, got %+v", last)
	}
}

func TestCookieServerSkipsOtherKinds(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	srv := newTestCookieServer(t, h.cookies, 1)

	deliver(t, h.cookies, h.client, protocol.CommandRequest{ID: 1, Cookie: 1, Type: protocol.CommandStatus})
	if err := srv.ServeOne(context.Background()); !errors.Is(err, protocol.ErrUnexpectedKind) {
		t.Fatalf("expected ErrUnexpectedKind, got %v", err)
	}
	deliverRaw(t, h.cookies, h.client, []byte("cp cookie_response ok 1 0"))
	if err := srv.ServeOne(context.Background()); !errors.Is(err, protocol.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
	if h.client.Pending() != 0 || srv.Store().Len() != 0 {
		t.Fatalf("skipped frames must not be answered or admitted")
	}
}

func TestCookieServerServeStops(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	srv := newTestCookieServer(t, h.cookies, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop on cancel")
	}

	go func() { done <- srv.Serve(context.Background()) }()
	_ = h.cookies.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop on close")
	}
}

func newTestCommandServer(t *testing.T, ep *phy.MemEndpoint, cfg CommandServerConfig) *CommandServer {
	t.Helper()
	cfg.Session = testSession()
	srv, err := NewCommandServer(ep, cfg)
	if err != nil {
		t.Fatalf("new command server: %v", err)
	}
	return srv
}

func TestCommandServerStatus(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	srv := newTestCommandServer(t, h.commands, CommandServerConfig{CookieTTL: time.Minute})

	deliver(t, h.commands, h.client, protocol.CommandRequest{ID: 3, Cookie: 8, Type: protocol.CommandStatus})
	if err := srv.ServeOne(context.Background()); err != nil {
		t.Fatalf("serve: %v", err)
	}
	resp, ok := readMessage(t, h.client).(protocol.CommandResponse)
	if !ok || resp.ID != 3 || !resp.OK {
		t.Fatalf("unexpected response %+v", resp)
	}
	if lines := bytes.Count([]byte(resp.Message), []byte("\n")) + 1; lines < 2 {
		t.Fatalf("status should span at least two lines, got %q", resp.Message)
	}
	var report StatusReport
	if err := json.Unmarshal([]byte(resp.Message), &report); err != nil {
		t.Fatalf("status body: %v", err)
	}
	if report.ProcessedCommands != 1 || report.CookieTTLMillis != time.Minute.Milliseconds() {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestCommandServerPrint(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	var out bytes.Buffer
	srv := newTestCommandServer(t, h.commands, CommandServerConfig{Output: &out})

	deliver(t, h.commands, h.client, protocol.CommandRequest{ID: 7, Cookie: 42, Type: protocol.CommandPrint, Message: "ok"})
	if err := srv.ServeOne(context.Background()); err != nil {
		t.Fatalf("serve: %v", err)
	}
	resp := readMessage(t, h.client).(protocol.CommandResponse)
	if resp.ID != 7 || !resp.OK || resp.Length() != 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if out.String() != "ok\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
	if srv.Processed() != 1 {
		t.Fatalf("expected one processed command, got %d", srv.Processed())
	}
}

func TestCommandServerRejectsUnknownCookie(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	store := cookie.NewStore(cookie.DefaultConfig())
	srv := newTestCommandServer(t, h.commands, CommandServerConfig{Validator: store})

	deliver(t, h.commands, h.client, protocol.CommandRequest{ID: 2, Cookie: 5, Type: protocol.CommandStatus})
	if err := srv.ServeOne(context.Background()); err != nil {
		t.Fatalf("serve: %v", err)
	}
	resp := readMessage(t, h.client).(protocol.CommandResponse)
	if resp.ID != 2 || resp.OK {
		t.Fatalf("expected error response, got %+v", resp)
	}
	if srv.Processed() != 0 {
		t.Fatalf("rejected commands must not count")
	}

	granted := store.Admit("cp://client:5000")
	deliver(t, h.commands, h.client, protocol.CommandRequest{ID: 3, Cookie: granted.Value, Type: protocol.CommandStatus})
	if err := srv.ServeOne(context.Background()); err != nil {
		t.Fatalf("serve: %v", err)
	}
	resp = readMessage(t, h.client).(protocol.CommandResponse)
	if resp.ID != 3 || !resp.OK {
		t.Fatalf("expected ok response for a live cookie, got %+v", resp)
	}
}
