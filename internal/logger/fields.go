package logger

// Standard field keys for structured logging. Use these consistently across
// all log statements so records can be aggregated and queried by field.
const (
	KeyTraceID = "trace_id" // per-request trace identifier (tr-...)

	KeyOperation = "operation" // file operation: UPLOAD, DOWNLOAD, DELETE, ...
	KeyStage     = "stage"     // pipeline stage at time of logging
	KeyStatus    = "status"    // operation result status

	KeyFileID     = "file_id"
	KeyFamilyID   = "family_id"
	KeyUserID     = "user_id"
	KeyFileName   = "file_name"
	KeyFolderPath = "folder_path"
	KeySize       = "size"
	KeyStorage    = "storage_type" // local or object

	KeyClientIP = "client_ip"
	KeyDatabase = "database" // proxy: backend database name
	KeyProtocol = "protocol" // proxy: postgres, mysql, mongodb, redis

	KeyDuration = "duration"
	KeyError    = "error"
)
