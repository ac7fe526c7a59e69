package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode identifies one kind of DFU failure.
//
// Codes below 0x0100 are raised by this library. 0x0100+n is device
// result code n, and 0x0200+n is device extended error code n.
type ErrorCode uint16

// Library error codes.
const (
	CodePreDFUInterrupted    ErrorCode = 0x0001
	CodeUnexpectedBytes      ErrorCode = 0x0002
	CodeCRCMismatch          ErrorCode = 0x0003
	CodeTooManyWriteFailures ErrorCode = 0x0004

	CodePRNTooHigh              ErrorCode = 0x0011
	CodeReadConflict            ErrorCode = 0x0012
	CodeReadTimeout             ErrorCode = 0x0013
	CodeDuplicateMessage        ErrorCode = 0x0014
	CodeMalformedResponse       ErrorCode = 0x0015
	CodeEmptyResponse           ErrorCode = 0x0016
	CodeUnexpectedOpcode        ErrorCode = 0x0017
	CodeUnexpectedResponseBytes ErrorCode = 0x0018

	CodeMustHavePayload     ErrorCode = 0x0031
	CodeMismatchedCRC32     ErrorCode = 0x0032
	CodeMoreBytesThanChunk  ErrorCode = 0x0033
	CodeInvalidPayloadType  ErrorCode = 0x0034
	CodeUnknownFirmwareType ErrorCode = 0x0071
	CodePortNotFound        ErrorCode = 0x0072
	CodeNoPortSpecified     ErrorCode = 0x0073
	CodeMessageTooLarge     ErrorCode = 0x0074
)

const (
	codeResponseBase ErrorCode = 0x0100
	codeExtendedBase ErrorCode = 0x0200
)

// Device result codes that the host branches on.
const (
	CodeResponseNotSupported ErrorCode = codeResponseBase | ResultOpCodeNotSupported
	CodeResponseUnsupported  ErrorCode = codeResponseBase | ResultUnsupportedType
	CodeResponseExtended     ErrorCode = codeResponseBase | ResultExtendedError
)

// ResponseCode returns the code of device result r.
func ResponseCode(r byte) ErrorCode { return codeResponseBase | ErrorCode(r) }

// ExtendedCode returns the code of device extended error e.
func ExtendedCode(e byte) ErrorCode { return codeExtendedBase | ErrorCode(e) }

// IsResponse reports whether c is a device result code.
func (c ErrorCode) IsResponse() bool { return c&0xFF00 == codeResponseBase }

// IsExtended reports whether c is a device extended error code.
func (c ErrorCode) IsExtended() bool { return c&0xFF00 == codeExtendedBase }

// Message returns the catalog text for c.
func (c ErrorCode) Message() string {
	var (
		msg string
		ok  bool
	)
	switch {
	case c.IsResponse():
		msg, ok = responseMessages[byte(c)]
	case c.IsExtended():
		msg, ok = extendedMessages[byte(c)]
	default:
		msg, ok = messages[c]
	}
	if !ok {
		return fmt.Sprintf("unknown error 0x%04X", uint16(c))
	}
	return msg
}

// Error is a DFU failure of a known kind.
type Error struct {
	// Code is the kind of failure
	Code ErrorCode

	// Detail is optional context appended to the catalog message
	Detail string

	// Err is the underlying cause, if any
	Err error
}

func (e *Error) Error() string {
	msg := e.Code.Message()
	if e.Detail != "" {
		msg += " " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// errorf creates an Error with a formatted detail.
func errorf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is.
var (
	ErrPreDFUInterrupted       = &Error{Code: CodePreDFUInterrupted}
	ErrUnexpectedBytes         = &Error{Code: CodeUnexpectedBytes}
	ErrCRCMismatch             = &Error{Code: CodeCRCMismatch}
	ErrTooManyWriteFailures    = &Error{Code: CodeTooManyWriteFailures}
	ErrPRNTooHigh              = &Error{Code: CodePRNTooHigh}
	ErrReadConflict            = &Error{Code: CodeReadConflict}
	ErrReadTimeout             = &Error{Code: CodeReadTimeout}
	ErrDuplicateMessage        = &Error{Code: CodeDuplicateMessage}
	ErrMalformedResponse       = &Error{Code: CodeMalformedResponse}
	ErrEmptyResponse           = &Error{Code: CodeEmptyResponse}
	ErrUnexpectedOpcode        = &Error{Code: CodeUnexpectedOpcode}
	ErrUnexpectedResponseBytes = &Error{Code: CodeUnexpectedResponseBytes}
	ErrMustHavePayload         = &Error{Code: CodeMustHavePayload}
	ErrMismatchedCRC32         = &Error{Code: CodeMismatchedCRC32}
	ErrMoreBytesThanChunk      = &Error{Code: CodeMoreBytesThanChunk}
	ErrInvalidPayloadType      = &Error{Code: CodeInvalidPayloadType}
	ErrPortNotFound            = &Error{Code: CodePortNotFound}
	ErrNoPortSpecified         = &Error{Code: CodeNoPortSpecified}
	ErrMessageTooLarge         = &Error{Code: CodeMessageTooLarge}
)

// ChecksumMismatchError is returned when the device reports a different
// offset or CRC than the host computed.
type ChecksumMismatchError struct {
	ExpectedOffset uint32
	ActualOffset   uint32
	Expected       uint32
	Actual         uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("%s expected offset %d crc 0x%08X, device reported offset %d crc 0x%08X",
		CodeCRCMismatch.Message(), e.ExpectedOffset, e.Expected, e.ActualOffset, e.Actual)
}

// Is matches ErrCRCMismatch.
func (e *ChecksumMismatchError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == CodeCRCMismatch
}

// CodeOf returns the code of the outermost taxonomy error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch v := e.(type) {
		case *Error:
			return v.Code, true
		case *ChecksumMismatchError:
			return CodeCRCMismatch, true
		}
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	var cm *ChecksumMismatchError
	if errors.As(err, &cm) {
		return CodeCRCMismatch, true
	}
	return 0, false
}

// IsResponseError reports whether err was reported by the device as a result code.
func IsResponseError(err error) bool {
	code, ok := CodeOf(err)
	return ok && code.IsResponse()
}

// IsExtendedError reports whether err was reported by the device as an extended error.
func IsExtendedError(err error) bool {
	code, ok := CodeOf(err)
	return ok && code.IsExtended()
}
