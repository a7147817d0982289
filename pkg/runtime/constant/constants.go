package constant

import "errors"

// Error taxonomy shared by the engine, the device links and the relay.
// Concrete failures wrap one of these, test with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrConnection     = errors.New("connection error")
	ErrIdentification = errors.New("identification error")
	ErrTimeout        = errors.New("timeout error")
	ErrProtocol       = errors.New("protocol error")
	ErrUnmappedStatus = errors.New("unmapped status code")
)

var (
	ErrReadOnly          = errors.New("parameter is readonly")
	ErrModuleNotFound    = errors.New("no such module")
	ErrParameterNotFound = errors.New("no such parameter")
	ErrNotInitialized    = errors.New("parameter has no value yet")
	ErrLinkClosed        = errors.New("device link closed")
	ErrClassNotFound     = errors.New("unsupported module class")
)
