package guardl2

import "errors"

// Frame-level errors. Frames failing these checks are dropped by both ends.
var (
	ErrTruncated        = errors.New("guardl2: truncated frame")
	ErrChecksumMismatch = errors.New("guardl2: checksum mismatch")
	ErrPayloadTooLarge  = errors.New("guardl2: payload exceeds segment size")
	ErrUnknownFrameType = errors.New("guardl2: unknown frame type")
	ErrNotGuardFrame    = errors.New("guardl2: not a guard frame")
)

// Transfer-level errors returned by Sender.Send and Receiver.Receive.
var (
	ErrHandshakeFailed  = errors.New("guardl2: handshake not acknowledged")
	ErrSizeMismatch     = errors.New("guardl2: reassembled size differs from announced size")
	ErrSessionTimeout   = errors.New("guardl2: inactivity timeout")
	ErrTransferTooLarge = errors.New("guardl2: transfer exceeds sequence space")
)
