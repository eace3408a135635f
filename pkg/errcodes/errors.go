package errcodes

// Error taxonomy for the scanning engine. Per-item errors (io, parse,
// external tool, persistence) are captured into the scan summary and never
// abort a run; configuration errors are fatal at startup.

type Error struct {
	Kind    string
	Message string
}

const (
	KindIO            = "io_error"
	KindParse         = "parse_error"
	KindExternalTool  = "external_tool_error"
	KindDuplicateKey  = "duplicate_key_conflict"
	KindPersistence   = "persistence_error"
	KindConfiguration = "configuration_error"
	KindNotFound      = "not_found"
)

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.Kind = err.Kind
	te.Message = err.Message
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Kind == err.Kind && te.Message == err.Message
}

// IO returns a recoverable per-item error for an unreadable file or archive.
func IO(msg string) error {
	return &Error{KindIO, msg}
}

// Parse returns a recoverable per-item error for malformed format content.
func Parse(msg string) error {
	return &Error{KindParse, msg}
}

// ExternalTool returns a recoverable error for a missing or failing
// PDF/DjVu rendering or metadata tool.
func ExternalTool(msg string) error {
	return &Error{KindExternalTool, msg}
}

// DuplicateKey marks an expected uniqueness conflict during concurrent
// author/series creation. It is retried transparently, never surfaced.
func DuplicateKey(msg string) error {
	return &Error{KindDuplicateKey, msg}
}

// Persistence returns a transaction failure against the backend.
func Persistence(msg string) error {
	return &Error{KindPersistence, msg}
}

// Configuration returns a fatal startup error (unreadable root path,
// invalid schedule expression).
func Configuration(msg string) error {
	return &Error{KindConfiguration, msg}
}

// NotFound returns an error indicating the given resource does not exist.
func NotFound(resource string) error {
	return &Error{KindNotFound, resource + " not found."}
}
