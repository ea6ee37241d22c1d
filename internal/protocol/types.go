package protocol

import "fmt"

const (
	Tag = "cp"

	headerCommand         = "command"
	headerCommandResponse = "command_response"
	headerCookieRequest   = "cookie_request"
	headerCookieResponse  = "cookie_response"

	cookieRequestFrame = Tag + " " + headerCookieRequest

	statusOK    = "ok"
	statusError = "error"

	// MinCommandID and MaxCommandID bound correlation ids on the wire.
	MinCommandID = 1
	MaxCommandID = 65535
)

// Cookie refusal reasons carried by CookieResponse.Reason.
const (
	ReasonActiveCookieExists = "ACTIVE_COOKIE_EXISTS"
	ReasonTooManyCookies     = "TOO_MANY_COOKIES"
)

// Kind identifies one of the four CP message kinds.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindCommandRequest
	KindCommandResponse
	KindCookieRequest
	KindCookieResponse
)

func (k Kind) String() string {
	switch k {
	case KindCommandRequest:
		return headerCommand
	case KindCommandResponse:
		return headerCommandResponse
	case KindCookieRequest:
		return headerCookieRequest
	case KindCookieResponse:
		return headerCookieResponse
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// CommandType is the command carried by a CommandRequest.
type CommandType uint8

const (
	CommandStatus CommandType = iota + 1
	CommandPrint
)

func (t CommandType) String() string {
	switch t {
	case CommandStatus:
		return "status"
	case CommandPrint:
		return "print"
	default:
		return fmt.Sprintf("command(%d)", uint8(t))
	}
}

func parseCommandType(raw string) (CommandType, bool) {
	switch raw {
	case "status":
		return CommandStatus, true
	case "print":
		return CommandPrint, true
	default:
		return 0, false
	}
}

// Message is one CP message value.
type Message interface {
	Kind() Kind
}

// CommandRequest asks the command server to run one command.
type CommandRequest struct {
	ID      int
	Cookie  int
	Type    CommandType
	Message string
}

func (CommandRequest) Kind() Kind { return KindCommandRequest }

// CommandResponse answers the CommandRequest with the same ID.
type CommandResponse struct {
	ID      int
	OK      bool
	Message string
}

func (CommandResponse) Kind() Kind { return KindCommandResponse }

// Length is the byte length of the response message.
func (r CommandResponse) Length() int { return len(r.Message) }

// CookieRequest has no payload.
type CookieRequest struct{}

func (CookieRequest) Kind() Kind { return KindCookieRequest }

// CookieResponse carries either an issued cookie value or a refusal reason.
type CookieResponse struct {
	Success bool
	Value   int
	Reason  string
}

func (CookieResponse) Kind() Kind { return KindCookieResponse }

func validCommandID(id int) bool {
	return id >= MinCommandID && id <= MaxCommandID
}
