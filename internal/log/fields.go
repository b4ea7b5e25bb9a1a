package log

// Common field names for structured logging
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
	FieldErrorCode   = "error_code"
	FieldOperation   = "operation"
	FieldUserID      = "user_id"
	FieldGoalID      = "goal_id"
	FieldContractID  = "contract_id"
	FieldSessionID   = "session_id"
	FieldCategory    = "category"
	FieldAmountCents = "amount_cents"
	FieldJobType     = "job_type"
	FieldJob         = "job"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldSheetsRange = "sheets_range"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentAuth       = "auth"
	ComponentStorage    = "storage"
	ComponentCache      = "cache"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentScheduler  = "scheduler"
	ComponentLLM        = "llm"
	ComponentDebrief    = "debrief"
	ComponentGPS        = "gps"
	ComponentSimulation = "simulation"
	ComponentShark      = "shark"
	ComponentCommitment = "commitment"
	ComponentSheets     = "sheets"
	ComponentSecurity   = "security"
	ComponentRateLimit  = "rate_limit"
	ComponentTrace      = "trace"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpSettle   = "settle"
	OpAudit    = "audit"
	OpExport   = "export"
	OpDebrief  = "debrief"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error text. Nil errors are skipped.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithUser adds the authenticated user. Zero means anonymous and is skipped.
func (f LogFields) WithUser(userID int64) LogFields {
	if userID != 0 {
		f[FieldUserID] = userID
	}
	return f
}

func (f LogFields) WithJob(jobType string, userID int64) LogFields {
	f[FieldJobType] = jobType
	return f.WithUser(userID)
}

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

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog. The component field is
// left out because Logger adds its own.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		if k == FieldComponent {
			continue
		}
		slice = append(slice, k, v)
	}
	return slice
}
