package log

import "sort"

// Field names shared by every component so log queries can join on them.
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldUserID      = "user_id"
	FieldKind        = "kind"
	FieldMode        = "mode"
	FieldAmountCents = "amount_cents"
	FieldEntries     = "entries"
	FieldEventID     = "event_id"
)

const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentFinance = "finance"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentTrace   = "trace"
	ComponentBackend = "backend"
	ComponentAdmin   = "admin"
)

const (
	OpDistribute = "distribute"
	OpPublish    = "publish"
)

// LogFields collects attributes before they are handed to slog. The
// component is not a field: it belongs to the Logger.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	if op != "" {
		f[FieldOperation] = op
	}
	return f
}

func (f LogFields) WithUserID(userID int64) LogFields {
	f[FieldUserID] = userID
	return f
}

// WithDistribution adds the fields describing one distribution request.
func (f LogFields) WithDistribution(userID, amountCents int64, kind, mode string) LogFields {
	f[FieldUserID] = userID
	f[FieldAmountCents] = amountCents
	f[FieldKind] = kind
	f[FieldMode] = mode
	return f
}

// WithHTTPRequest adds the request line. Empty query and user agent are
// left out to keep completion lines short.
func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if query != "" {
		f[FieldQuery] = query
	}
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice flattens the fields in key order.
func (f LogFields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	slice := make([]any, 0, len(f)*2)
	for _, k := range keys {
		slice = append(slice, k, f[k])
	}
	return slice
}
