package log

// Field names used across LifeSync logs.
const (
	FieldComponent  = "component"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldUserID     = "user_id"
	FieldCollection = "collection"
	FieldRecordID   = "record_id"
	FieldPath       = "path"
	FieldRecords    = "records"
	FieldSeq        = "seq"
	FieldDuration   = "duration_ms"
	FieldYear       = "year"
	FieldMonth      = "month"
	FieldExporter   = "exporter"
)

const (
	ComponentApp        = "app"
	ComponentGateway    = "gateway"
	ComponentSubscriber = "subscriber"
	ComponentStore      = "store"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentExport     = "export"
	ComponentCache      = "cache"
	ComponentAuth       = "auth"
	ComponentDashboard  = "dashboard"
	ComponentBlob       = "blob"
)

const (
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpSettle    = "settle"
	OpSubscribe = "subscribe"
	OpExport    = "export"
	OpUpload    = "upload"
	OpPublish   = "publish"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// LogFields is a small builder for structured fields.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

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

// WithRecord adds the user, collection and record id of a document.
func (f LogFields) WithRecord(uid, collection, id string) LogFields {
	f[FieldUserID] = uid
	f[FieldCollection] = collection
	if id != "" {
		f[FieldRecordID] = id
	}
	return f
}

// ToSlice flattens the fields into slog key/value arguments.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
