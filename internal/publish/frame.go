package publish

import (
	"encoding/binary"
	"fmt"

	"github.com/freighter-go/registry/internal/errs"
)

// ParseFrame splits a publish request body into its metadata JSON and
// tarball bytes. The wire format is two consecutive frames, each a 4-byte
// little-endian length prefix followed by that many bytes: JSON metadata
// first, then the crate tarball.
func ParseFrame(body []byte) (metaJSON, tarball []byte, err error) {
	jsonBytes, rest, err := takeFrame(body)
	if err != nil {
		return nil, nil, err
	}
	crateBytes, rest, err := takeFrame(rest)
	if err != nil {
		return nil, nil, err
	}
	if len(rest) != 0 {
		return nil, nil, fmt.Errorf("%w: trailing bytes after publish frame", errs.ErrBadRequest)
	}
	return jsonBytes, crateBytes, nil
}

func takeFrame(body []byte) (frame, rest []byte, err error) {
	if len(body) < 4 {
		return nil, nil, fmt.Errorf("%w: frame truncated", errs.ErrBadRequest)
	}
	n := binary.LittleEndian.Uint32(body[:4])
	body = body[4:]
	if uint64(len(body)) < uint64(n) {
		return nil, nil, fmt.Errorf("%w: frame length exceeds body", errs.ErrBadRequest)
	}
	return body[:n], body[n:], nil
}
