package response

var errors = map[ErrCode]string{
	ErrCodeMalformedJSON:              "The JSON you provided was not well-formed or did not validate against our published format.",
	ErrCodeRequestBody:                "Request body error",
	ErrCodeResourceExists:             "Resource %s already exists.",
	ErrCodeResourceNotFound:           "Resource %s not found.",
	ErrCodeValidation:                 "Invalid value: %s",
	ErrCodeReadOnly:                   "Parameter %s is read only.",
	ErrCodeDeviceProtocol:             "Unexpected reply from device: %s",
	ErrCodeDeviceConnection:           "Device not reachable: %s",
	ErrCodeDeviceTimeout:              "Device did not reply in time: %s",
	ErrCodeInternal:                   "Internal error: %s",
	ErrCodeTooManyJsonPatchOperations: "The allowed maximum operations in a JSON patch is %d.",
	ErrCodeUnsupportedPatchType:       "Unsupported patch type %s.",
}

var ErrMalformedJSON = &responseError{
	Code:    ErrCodeMalformedJSON,
	Message: errors[ErrCodeMalformedJSON],
}

var ErrRequestBody = &responseError{
	Code:    ErrCodeRequestBody,
	Message: errors[ErrCodeRequestBody],
}
