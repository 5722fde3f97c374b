package wire

import "github.com/fastproto/fast/fasterr"

// Decode error constructors. Every one of these is protocol-fatal —
// the caller is expected to terminate the bearing connection.
var (
	ErrBadVersion     = fasterr.New(fasterr.KindBadVersion, "BadVersion", "unsupported protocol version")
	ErrUnknownType    = fasterr.New(fasterr.KindBadType, "BadType", "unknown message type")
	ErrStatusMismatch = fasterr.New(fasterr.KindBadType, "BadType", "status does not match type")
	ErrIDZero         = fasterr.New(fasterr.KindIDZero, "IDZero", "message id must be non-zero")
	ErrCRCMismatch    = fasterr.New(fasterr.KindCRCMismatch, "CRCMismatch", "checksum does not match payload")
	ErrOversized      = fasterr.New(fasterr.KindOversizedFrame, "OversizedFrame", "declared payload length exceeds maximum")
	ErrCRCUpperBits   = fasterr.New(fasterr.KindCRCMismatch, "CRCMismatch", "checksum field upper 16 bits must be zero")
)

func errMalformedJSON(cause error) *fasterr.Error {
	return fasterr.New(fasterr.KindMalformedJSON, "MalformedJSON", "payload is not valid JSON").WithCause(cause)
}

func errStructural(message string) *fasterr.Error {
	return fasterr.New(fasterr.KindStructural, "StructuralMismatch", message)
}
