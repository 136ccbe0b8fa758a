package improv

import "errors"

var (
	// ErrIncomplete means the buffer holds a valid prefix of a frame but not
	// the whole frame. The caller must keep the buffer and read more bytes.
	ErrIncomplete = errors.New("improv: incomplete frame")

	ErrInvalidMagic    = errors.New("improv: invalid magic")
	ErrInvalidChecksum = errors.New("improv: invalid checksum")
	ErrInvalidUTF8     = errors.New("improv: invalid utf-8 string")

	// The byte value that failed validation is appended to these with %w
	// wrapping, so errors.Is still matches the sentinel.
	ErrInvalidPayloadType = errors.New("improv: invalid payload type")
	ErrInvalidCommand     = errors.New("improv: invalid rpc command")
	ErrInvalidState       = errors.New("improv: invalid state value")
	ErrInvalidError       = errors.New("improv: invalid error value")

	ErrStringTooLong   = errors.New("improv: string exceeds 255 bytes")
	ErrPayloadTooLarge = errors.New("improv: payload exceeds 255 bytes")
)
