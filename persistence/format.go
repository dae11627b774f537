// Package persistence provides the snapshot envelope: framing, compression,
// and atomic file handling for serialized graph topology.
package persistence

import "errors"

const (
	// MagicNumber identifies snapshot envelopes (ASCII: "SWF0").
	MagicNumber = 0x53574630
)

var (
	ErrInvalidMagic       = errors.New("invalid magic number")
	ErrUnknownCompression = errors.New("unknown compression codec")
)
