package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Encode writes msg to w using the CP wire format.
func Encode(w io.Writer, msg Message) error {
	frame, err := Marshal(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// Marshal renders msg as one CP frame.
func Marshal(msg Message) ([]byte, error) {
	var body bytes.Buffer
	body.WriteString(Tag)

	switch m := msg.(type) {
	case CommandRequest:
		if err := writeCommandRequest(&body, m); err != nil {
			return nil, err
		}
	case *CommandRequest:
		if m == nil {
			return nil, fmt.Errorf("%w: nil message", ErrFrame)
		}
		return Marshal(*m)
	case CommandResponse:
		if err := writeCommandResponse(&body, m); err != nil {
			return nil, err
		}
	case *CommandResponse:
		if m == nil {
			return nil, fmt.Errorf("%w: nil message", ErrFrame)
		}
		return Marshal(*m)
	case CookieRequest, *CookieRequest:
		return []byte(cookieRequestFrame), nil
	case CookieResponse:
		if err := writeCookieResponse(&body, m); err != nil {
			return nil, err
		}
	case *CookieResponse:
		if m == nil {
			return nil, fmt.Errorf("%w: nil message", ErrFrame)
		}
		return Marshal(*m)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedKind, msg)
	}

	sum := Checksum(body.Bytes())
	body.WriteByte(' ')
	body.WriteString(strconv.FormatUint(uint64(sum), 10))
	return body.Bytes(), nil
}

func writeCommandRequest(buf *bytes.Buffer, m CommandRequest) error {
	if !validCommandID(m.ID) {
		return fmt.Errorf("%w: command id %d out of range", ErrFrame, m.ID)
	}
	switch m.Type {
	case CommandStatus:
		if m.Message != "" {
			return fmt.Errorf("%w: status carries no message", ErrFrame)
		}
	case CommandPrint:
		if m.Message == "" {
			return fmt.Errorf("%w: print requires a message", ErrFrame)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedCommand, m.Type)
	}
	fmt.Fprintf(buf, " %s %d %d %s %d%s", headerCommand, m.ID, m.Cookie, m.Type, len(m.Message), m.Message)
	return nil
}

func writeCommandResponse(buf *bytes.Buffer, m CommandResponse) error {
	if !validCommandID(m.ID) {
		return fmt.Errorf("%w: command id %d out of range", ErrFrame, m.ID)
	}
	status := statusError
	if m.OK {
		status = statusOK
	}
	fmt.Fprintf(buf, " %s %d %s %d", headerCommandResponse, m.ID, status, len(m.Message))
	if m.Message != "" {
		buf.WriteByte(' ')
		buf.WriteString(m.Message)
	}
	return nil
}

func writeCookieResponse(buf *bytes.Buffer, m CookieResponse) error {
	if m.Success {
		fmt.Fprintf(buf, " %s %s %d", headerCookieResponse, statusOK, m.Value)
		return nil
	}
	reason := m.Reason
	if reason == "" || strings.ContainsAny(reason, " \t\r\n") {
		return fmt.Errorf("%w: invalid refusal reason %q", ErrFrame, reason)
	}
	fmt.Fprintf(buf, " %s %s %s", headerCookieResponse, statusError, reason)
	return nil
}
