package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldUserID        = "user_id"
	FieldTransactionID = "transaction_id"
	FieldCategoryID    = "category_id"
	FieldTxType        = "tx_type"
	FieldAmount        = "amount"
	FieldBalance       = "balance"
	FieldDeficit       = "deficit"
	FieldEventKind     = "event_kind"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentLedger  = "ledger"
	ComponentCatalog = "catalog"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentAuth    = "auth"
	ComponentBackend = "backend"
	ComponentExport  = "export"
)

// Operations defines standard operation names
const (
	OpRecord    = "record"
	OpDelete    = "delete"
	OpList      = "list"
	OpBalance   = "balance"
	OpSeed      = "seed"
	OpResolve   = "resolve"
	OpReconcile = "reconcile"
	OpPublish   = "publish"
	OpMirror    = "mirror"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
	OpExport    = "export"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTransaction adds transaction-related fields
func (f LogFields) WithTransaction(id, userID, categoryID, txType, amount string) LogFields {
	f[FieldTransactionID] = id
	f[FieldUserID] = userID
	f[FieldCategoryID] = categoryID
	f[FieldTxType] = txType
	f[FieldAmount] = amount
	return f
}

// WithUser adds the user id field
func (f LogFields) WithUser(userID string) LogFields {
	f[FieldUserID] = userID
	return f
}

// With adds an arbitrary field
func (f LogFields) With(key string, value any) LogFields {
	f[key] = value
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
