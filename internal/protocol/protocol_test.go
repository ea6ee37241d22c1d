package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
	"testing"

	"github.com/danmuck/cpnet/internal/testutil/testlog"
)

func withChecksum(body string) []byte {
	sum := crc32.ChecksumIEEE([]byte(body[len(Tag):]))
	return []byte(fmt.Sprintf("%s %d", body, sum))
}

func TestMarshalCommandRequestWireFormat(t *testing.T) {
	testlog.Start(t)
	frame, err := Marshal(CommandRequest{ID: 7, Cookie: 42, Type: CommandPrint, Message: "ok"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := fmt.Sprintf("cp command 7 42 print 2ok %d", crc32.ChecksumIEEE([]byte(" command 7 42 print 2ok")))
	if string(frame) != want {
		t.Fatalf("frame mismatch\n got=%q\nwant=%q", frame, want)
	}
	testlog.Logf("protocol/encode: %s", frame)
}

func TestCommandRequestRoundTrip(t *testing.T) {
	testlog.Start(t)
	cases := []CommandRequest{
		{ID: 1, Cookie: 42, Type: CommandStatus},
		{ID: 65535, Cookie: -17, Type: CommandPrint, Message: "hello world"},
		{ID: 12, Cookie: 0, Type: CommandPrint, Message: "5"},
		{ID: 300, Cookie: 2147483647, Type: CommandPrint, Message: "1234567890 ab"},
	}
	for _, in := range cases {
		frame, err := Marshal(in)
		if err != nil {
			t.Fatalf("marshal %+v: %v", in, err)
		}
		out, err := UnmarshalCommandRequest(frame)
		if err != nil {
			t.Fatalf("unmarshal %q: %v", frame, err)
		}
		if out != in {
			t.Fatalf("round-trip mismatch in=%+v out=%+v", in, out)
		}
	}
}

func TestEncodeWritesFrame(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := Encode(&buf, CookieRequest{}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.String() != "cp cookie_request" {
		t.Fatalf("unexpected cookie request frame %q", buf.String())
	}
	msg, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Kind() != KindCookieRequest {
		t.Fatalf("expected cookie request, got %s", msg.Kind())
	}
}

func TestUnmarshalSingleByteFlipFailsIntegrity(t *testing.T) {
	testlog.Start(t)
	frames := []Message{
		CommandRequest{ID: 7, Cookie: 42, Type: CommandPrint, Message: "ok"},
		CommandResponse{ID: 9, OK: true, Message: "{\n  \"processed_commands\": 3,\n  \"cookie_ttl_ms\": 1000\n}"},
		CookieResponse{Success: true, Value: 123456},
		CookieResponse{Reason: ReasonTooManyCookies},
	}
	for _, msg := range frames {
		frame, err := Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		sep := bytes.LastIndexByte(frame, ' ')
		for i := len(Tag); i < sep; i++ {
			corrupt := append([]byte(nil), frame...)
			corrupt[i] ^= 0x01
			if _, err := Unmarshal(corrupt); !errors.Is(err, ErrIntegrity) {
				t.Fatalf("flip at %d in %q: expected ErrIntegrity, got %v", i, frame, err)
			}
		}
	}
}

func TestUnmarshalCommandResponseWireFormat(t *testing.T) {
	testlog.Start(t)
	resp, err := UnmarshalCommandResponse(withChecksum("cp command_response 7 ok 0"))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID != 7 || !resp.OK || resp.Message != "" || resp.Length() != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCommandResponseMultilineMessageRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := CommandResponse{ID: 3, OK: true, Message: "{\n  \"processed_commands\": 1,\n  \"cookie_ttl_ms\": 59000\n}\n"}
	frame, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	wantPrefix := fmt.Sprintf("cp command_response 3 ok %d {", len(in.Message))
	if !strings.HasPrefix(string(frame), wantPrefix) {
		t.Fatalf("unexpected frame prefix %q", frame)
	}
	out, err := UnmarshalCommandResponse(frame)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round-trip mismatch in=%+v out=%+v", in, out)
	}
}

func TestCookieResponseRoundTrip(t *testing.T) {
	testlog.Start(t)
	for _, in := range []CookieResponse{
		{Success: true, Value: 99},
		{Success: true, Value: -5},
		{Reason: ReasonActiveCookieExists},
	} {
		frame, err := Marshal(in)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		out, err := UnmarshalCookieResponse(frame)
		if err != nil {
			t.Fatalf("unmarshal %q: %v", frame, err)
		}
		if out != in {
			t.Fatalf("round-trip mismatch in=%+v out=%+v", in, out)
		}
	}
	if _, err := Marshal(CookieResponse{Reason: "two words"}); !errors.Is(err, ErrFrame) {
		t.Fatalf("expected ErrFrame for reason with whitespace, got %v", err)
	}
}

func TestUnmarshalFrameErrors(t *testing.T) {
	testlog.Start(t)
	cases := map[string][]byte{
		"missing tag":        []byte("xp command_response 7 ok 0 1"),
		"tag only":           []byte("cp"),
		"no checksum":        []byte("cp command_response"),
		"checksum not int":   []byte("cp command_response 7 ok 0 abc"),
		"bad success":        withChecksum("cp command_response 7 maybe 0"),
		"id not int":         withChecksum("cp command_response seven ok 0"),
		"id out of range":    withChecksum("cp command_response 70000 ok 0"),
		"length mismatch":    withChecksum("cp command_response 7 ok 4 hi"),
		"stray message":      withChecksum("cp command_response 7 ok 0 hi"),
		"unknown header":     withChecksum("cp command_reply 7 ok 0"),
		"request bad length": withChecksum("cp command 7 42 print 3ok"),
		"request status msg": withChecksum("cp command 7 42 status 2ok"),
		"request bad cmd":    withChecksum("cp command 7 42 delete 0"),
		"cookie extra value": withChecksum("cp cookie_response ok 1 2"),
	}
	for name, frame := range cases {
		if _, err := Unmarshal(frame); !errors.Is(err, ErrFrame) {
			t.Fatalf("%s: expected ErrFrame, got %v", name, err)
		}
	}
}

func TestUnmarshalWrongKind(t *testing.T) {
	testlog.Start(t)
	frame, err := Marshal(CookieResponse{Success: true, Value: 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	_, err = UnmarshalCommandResponse(frame)
	if !errors.Is(err, ErrFrame) || !errors.Is(err, ErrUnexpectedKind) {
		t.Fatalf("expected ErrFrame+ErrUnexpectedKind, got %v", err)
	}
	if _, err := UnmarshalCookieResponse([]byte("cp cookie_request")); !errors.Is(err, ErrUnexpectedKind) {
		t.Fatalf("expected ErrUnexpectedKind, got %v", err)
	}
}

func TestUnmarshalToleratesWhitespaceRuns(t *testing.T) {
	testlog.Start(t)
	body := "cp  command   7 42\tprint 2ok"
	req, err := UnmarshalCommandRequest(withChecksum(body))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.ID != 7 || req.Cookie != 42 || req.Message != "ok" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestUnmarshalCookieRequestIsLiteral(t *testing.T) {
	testlog.Start(t)
	for _, frame := range []string{"cp cookie_request", "cp cookie_request\n", "cp cookie_request \r\n"} {
		msg, err := Unmarshal([]byte(frame))
		if err != nil {
			t.Fatalf("Unmarshal(%q): %v", frame, err)
		}
		if _, ok := msg.(CookieRequest); !ok {
			t.Fatalf("Unmarshal(%q): expected CookieRequest, got %T", frame, msg)
		}
	}
	for _, frame := range []string{"cp   cookie_request", "cp\tcookie_request", "cp cookie_request now", "cpcookie_request"} {
		if _, err := Unmarshal([]byte(frame)); !errors.Is(err, ErrFrame) {
			t.Fatalf("Unmarshal(%q): expected ErrFrame, got %v", frame, err)
		}
	}
}

func TestParseCommand(t *testing.T) {
	testlog.Start(t)
	for _, text := range []string{"", "   ", "\t\n"} {
		if _, _, err := ParseCommand(text); !errors.Is(err, ErrIllegalMsg) {
			t.Fatalf("ParseCommand(%q): expected ErrIllegalMsg, got %v", text, err)
		}
	}
	for _, text := range []string{"delete all", "print", "status now", "STATUS"} {
		if _, _, err := ParseCommand(text); !errors.Is(err, ErrUnsupportedCommand) {
			t.Fatalf("ParseCommand(%q): expected ErrUnsupportedCommand, got %v", text, err)
		}
	}

	cmd, msg, err := ParseCommand("print hello world")
	if err != nil || cmd != CommandPrint || msg != "hello world" || len(msg) != 11 {
		t.Fatalf("unexpected print parse cmd=%s msg=%q err=%v", cmd, msg, err)
	}
	cmd, msg, err = ParseCommand("  status ")
	if err != nil || cmd != CommandStatus || msg != "" {
		t.Fatalf("unexpected status parse cmd=%s msg=%q err=%v", cmd, msg, err)
	}
	_, msg, _ = ParseCommand("print   a \t b")
	if msg != "a b" {
		t.Fatalf("expected collapsed message, got %q", msg)
	}
}

func TestNewCommandRequestFramesPrintLength(t *testing.T) {
	testlog.Start(t)
	req, err := NewCommandRequest(1, 42, "print hello world")
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	frame, err := Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.HasPrefix(string(frame), "cp command 1 42 print 11hello world ") {
		t.Fatalf("unexpected frame %q", frame)
	}
	if _, err := NewCommandRequest(0, 42, "status"); !errors.Is(err, ErrFrame) {
		t.Fatalf("expected ErrFrame for id 0, got %v", err)
	}
}
