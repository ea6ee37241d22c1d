package phy

import (
	"bytes"
	"fmt"
)

const wireTag = "phy"

// encodeDatagram prefixes payload with the phy header "phy <proto> ".
func encodeDatagram(proto ProtoID, payload []byte) ([]byte, error) {
	if proto == "" || bytes.ContainsAny([]byte(proto), " \t\r\n") {
		return nil, fmt.Errorf("%w: protocol id %q", ErrInvalidAddr, proto)
	}
	out := make([]byte, 0, len(wireTag)+len(proto)+2+len(payload))
	out = append(out, wireTag...)
	out = append(out, ' ')
	out = append(out, proto...)
	out = append(out, ' ')
	out = append(out, payload...)
	if len(out) > MaxDatagramSize {
		return nil, ErrPayloadTooLarge
	}
	return out, nil
}

// decodeDatagram splits a phy datagram. Datagrams without a phy header are
// returned whole with an empty protocol id.
func decodeDatagram(buf []byte) (ProtoID, []byte) {
	rest, ok := bytes.CutPrefix(buf, []byte(wireTag+" "))
	if !ok {
		return "", buf
	}
	proto, payload, ok := bytes.Cut(rest, []byte(" "))
	if !ok {
		return ProtoID(proto), nil
	}
	return ProtoID(proto), payload
}
