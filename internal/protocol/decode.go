package protocol

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// Decode reads a single frame from r and parses it.
func Decode(r io.Reader) (Message, error) {
	frame, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(frame)
}

// Unmarshal parses one CP frame.
// The checksum is verified before any field is interpreted.
func Unmarshal(frame []byte) (Message, error) {
	s := strings.TrimRightFunc(string(frame), unicode.IsSpace)
	if !strings.HasPrefix(s, Tag) || len(s) == len(Tag) {
		return nil, fmt.Errorf("%w: missing %q tag", ErrFrame, Tag)
	}

	if s == cookieRequestFrame {
		return CookieRequest{}, nil
	}

	idx := strings.LastIndexFunc(s, unicode.IsSpace)
	if idx <= len(Tag) {
		return nil, fmt.Errorf("%w: missing checksum", ErrFrame)
	}
	sum, err := strconv.ParseUint(s[idx+1:], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: checksum %q", ErrFrame, s[idx+1:])
	}
	body := s[:idx]
	if got := Checksum([]byte(body)); got != uint32(sum) {
		return nil, fmt.Errorf("%w: want=%d got=%d", ErrIntegrity, sum, got)
	}

	if !isSeparator(body[len(Tag)]) {
		return nil, fmt.Errorf("%w: missing %q tag", ErrFrame, Tag)
	}
	kind, rest := nextToken(body[len(Tag):])
	switch kind {
	case headerCommand:
		return parseCommandRequest(rest)
	case headerCommandResponse:
		return parseCommandResponse(rest)
	case headerCookieResponse:
		return parseCookieResponse(rest)
	default:
		return nil, fmt.Errorf("%w: unknown header %q", ErrFrame, kind)
	}
}

// UnmarshalCommandRequest parses frame and requires a CommandRequest.
func UnmarshalCommandRequest(frame []byte) (CommandRequest, error) {
	msg, err := Unmarshal(frame)
	if err != nil {
		return CommandRequest{}, err
	}
	req, ok := msg.(CommandRequest)
	if !ok {
		return CommandRequest{}, unexpectedKind(KindCommandRequest, msg)
	}
	return req, nil
}

// UnmarshalCommandResponse parses frame and requires a CommandResponse.
func UnmarshalCommandResponse(frame []byte) (CommandResponse, error) {
	msg, err := Unmarshal(frame)
	if err != nil {
		return CommandResponse{}, err
	}
	resp, ok := msg.(CommandResponse)
	if !ok {
		return CommandResponse{}, unexpectedKind(KindCommandResponse, msg)
	}
	return resp, nil
}

// UnmarshalCookieResponse parses frame and requires a CookieResponse.
func UnmarshalCookieResponse(frame []byte) (CookieResponse, error) {
	msg, err := Unmarshal(frame)
	if err != nil {
		return CookieResponse{}, err
	}
	resp, ok := msg.(CookieResponse)
	if !ok {
		return CookieResponse{}, unexpectedKind(KindCookieResponse, msg)
	}
	return resp, nil
}

func unexpectedKind(want Kind, got Message) error {
	return fmt.Errorf("%w: %w: want=%s got=%s", ErrFrame, ErrUnexpectedKind, want, got.Kind())
}

func parseCommandRequest(rest string) (Message, error) {
	idTok, rest := nextToken(rest)
	cookieTok, rest := nextToken(rest)
	cmdTok, rest := nextToken(rest)

	id, err := parseID(idTok)
	if err != nil {
		return nil, err
	}
	cookie, err := parseInt("cookie", cookieTok)
	if err != nil {
		return nil, err
	}
	cmd, ok := parseCommandType(cmdTok)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", ErrFrame, ErrUnsupportedCommand, cmdTok)
	}
	msg, err := parseLengthPrefixed(strings.TrimLeftFunc(rest, unicode.IsSpace))
	if err != nil {
		return nil, err
	}
	switch {
	case cmd == CommandStatus && msg != "":
		return nil, fmt.Errorf("%w: status carries no message", ErrFrame)
	case cmd == CommandPrint && msg == "":
		return nil, fmt.Errorf("%w: print requires a message", ErrFrame)
	}
	return CommandRequest{ID: id, Cookie: cookie, Type: cmd, Message: msg}, nil
}

func parseCommandResponse(rest string) (Message, error) {
	idTok, rest := nextToken(rest)
	statusTok, rest := nextToken(rest)
	lengthTok, rest := nextToken(rest)

	id, err := parseID(idTok)
	if err != nil {
		return nil, err
	}
	ok, err := parseStatus(statusTok)
	if err != nil {
		return nil, err
	}
	length, err := parseInt("length", lengthTok)
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrFrame, length)
	}

	var msg string
	if length == 0 {
		if strings.TrimSpace(rest) != "" {
			return nil, fmt.Errorf("%w: unexpected message for length 0", ErrFrame)
		}
	} else {
		// One separator, then exactly length bytes; the message may span lines.
		if rest == "" || !isSeparator(rest[0]) {
			return nil, fmt.Errorf("%w: missing message", ErrFrame)
		}
		msg = rest[1:]
		if len(msg) != length {
			return nil, fmt.Errorf("%w: length=%d message bytes=%d", ErrFrame, length, len(msg))
		}
	}
	return CommandResponse{ID: id, OK: ok, Message: msg}, nil
}

func parseCookieResponse(rest string) (Message, error) {
	statusTok, rest := nextToken(rest)
	valueTok, rest := nextToken(rest)
	if valueTok == "" || strings.TrimSpace(rest) != "" {
		return nil, fmt.Errorf("%w: cookie_response expects one value", ErrFrame)
	}
	ok, err := parseStatus(statusTok)
	if err != nil {
		return nil, err
	}
	if !ok {
		return CookieResponse{Reason: valueTok}, nil
	}
	value, err := parseInt("cookie", valueTok)
	if err != nil {
		return nil, err
	}
	return CookieResponse{Success: true, Value: value}, nil
}

// parseLengthPrefixed splits "<len><msg>" using the shortest decimal prefix
// whose value matches the number of bytes that follow it.
func parseLengthPrefixed(tok string) (string, error) {
	digits := 0
	for digits < len(tok) && tok[digits] >= '0' && tok[digits] <= '9' {
		digits++
	}
	if digits == 0 {
		return "", fmt.Errorf("%w: missing message length", ErrFrame)
	}
	for k := 1; k <= digits; k++ {
		n, err := strconv.Atoi(tok[:k])
		if err != nil {
			break
		}
		if n == len(tok)-k {
			return tok[k:], nil
		}
	}
	return "", fmt.Errorf("%w: message length does not match %q", ErrFrame, tok)
}

func parseID(tok string) (int, error) {
	id, err := parseInt("id", tok)
	if err != nil {
		return 0, err
	}
	if !validCommandID(id) {
		return 0, fmt.Errorf("%w: command id %d out of range", ErrFrame, id)
	}
	return id, nil
}

func parseInt(field, tok string) (int, error) {
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrFrame, field, tok)
	}
	return v, nil
}

func parseStatus(tok string) (bool, error) {
	switch tok {
	case statusOK:
		return true, nil
	case statusError:
		return false, nil
	default:
		return false, fmt.Errorf("%w: success %q", ErrFrame, tok)
	}
}

func nextToken(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

func isSeparator(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
