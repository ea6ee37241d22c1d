package protocol

import "errors"

var (
	ErrFrame              = errors.New("protocol: malformed frame")
	ErrIntegrity          = errors.New("protocol: checksum mismatch")
	ErrUnsupportedCommand = errors.New("protocol: unsupported command")
	ErrIllegalMsg         = errors.New("protocol: illegal message")
	ErrUnexpectedKind     = errors.New("protocol: unexpected message kind")
)
