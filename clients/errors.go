package clients

const (
	// -----------------------------
	// TRANSPORT
	// -----------------------------
	ErrHTTPRequestFailed   = "adapter_http_request_failed"
	ErrUnexpectedStatus    = "adapter_unexpected_http_status"
	ErrMalformedResponse   = "adapter_malformed_response"
	ErrRPCConnectionFailed = "adapter_rpc_connection_failed"

	// -----------------------------
	// NORMALIZATION
	// -----------------------------
	ErrInvalidAmount  = "adapter_invalid_amount"
	ErrInvalidAddress = "adapter_invalid_address"

	// -----------------------------
	// UNEXPECTED
	// -----------------------------
	ErrUnexpectedAdapterError = "unexpected_adapter_error"
)
