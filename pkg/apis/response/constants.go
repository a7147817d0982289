package response

import "net/http"

type ErrCode int

const (
	_                                 ErrCode = 10000 + iota
	ErrCodeMalformedJSON                      // 10001
	ErrCodeRequestBody                        // 10002
	ErrCodeResourceExists                     // 10003
	ErrCodeResourceNotFound                   // 10004
	ErrCodeValidation                         // 10005
	ErrCodeReadOnly                           // 10006
	ErrCodeDeviceProtocol                     // 10007
	ErrCodeDeviceConnection                   // 10008
	ErrCodeDeviceTimeout                      // 10009
	ErrCodeInternal                           // 10010
	ErrCodeTooManyJsonPatchOperations         // 10011
	ErrCodeUnsupportedPatchType               // 10012
)

// !!! IMPORTANT PLEASE READ FIRST !!!
// You SHOULD add new code at the end, and append comment of number
// Meanwhile, the corresponding message and status SHOULD be appended in response.errors
// and response.statusCodes

var statusCodes = map[ErrCode]int{
	ErrCodeMalformedJSON:              http.StatusBadRequest,
	ErrCodeRequestBody:                http.StatusBadRequest,
	ErrCodeResourceExists:             http.StatusConflict,
	ErrCodeResourceNotFound:           http.StatusNotFound,
	ErrCodeValidation:                 http.StatusBadRequest,
	ErrCodeReadOnly:                   http.StatusForbidden,
	ErrCodeDeviceProtocol:             http.StatusBadGateway,
	ErrCodeDeviceConnection:           http.StatusServiceUnavailable,
	ErrCodeDeviceTimeout:              http.StatusGatewayTimeout,
	ErrCodeInternal:                   http.StatusInternalServerError,
	ErrCodeTooManyJsonPatchOperations: http.StatusBadRequest,
	ErrCodeUnsupportedPatchType:       http.StatusUnsupportedMediaType,
}
