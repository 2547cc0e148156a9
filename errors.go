package filemanager

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every error returned by this package wraps exactly one of them.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidPath   = errors.New("invalid path")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("already exists")
	ErrBackend       = errors.New("backend failure")
	ErrConfiguration = errors.New("configuration error")
)

// ErrRangeNotSatisfiable is returned when a byte range cannot be served.
var ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")

// Specific reasons, each wrapping a kind.
var (
	ErrReadOnly             = fmt.Errorf("%w: storage is read-only", ErrForbidden)
	ErrSystemPermission     = fmt.Errorf("%w: denied by the operating system", ErrForbidden)
	ErrNotAuthorized        = fmt.Errorf("%w: denied by authorizer", ErrForbidden)
	ErrRestrictedExtension  = fmt.Errorf("%w: extension not allowed", ErrForbidden)
	ErrRestrictedPattern    = fmt.Errorf("%w: path not allowed", ErrForbidden)
	ErrSizeLimit            = fmt.Errorf("%w: file exceeds size limit", ErrForbidden)
	ErrStorageFull          = fmt.Errorf("%w: storage size limit exceeded", ErrForbidden)
	ErrFileCount            = fmt.Errorf("%w: too many files", ErrForbidden)
	ErrImageDimensions      = fmt.Errorf("%w: image dimensions out of bounds", ErrForbidden)
	ErrDirectoryAction      = fmt.Errorf("%w: action not allowed on a directory", ErrForbidden)
	ErrStorageNotRegistered = fmt.Errorf("%w: storage not registered", ErrConfiguration)
	ErrDriverNotRegistered  = fmt.Errorf("%w: driver not registered", ErrConfiguration)
)

// Labels identify a failure to the client. They match the message keys of
// the file manager front end.
const (
	LabelFileNotExist          = "FILE_DOES_NOT_EXIST"
	LabelDirNotExist           = "DIRECTORY_NOT_EXIST"
	LabelInvalidFilePath       = "INVALID_FILE_PATH"
	LabelInvalidDirPath        = "INVALID_DIRECTORY_PATH"
	LabelForbiddenName         = "FORBIDDEN_NAME"
	LabelInvalidFileType       = "INVALID_FILE_TYPE"
	LabelNotAllowed            = "NOT_ALLOWED"
	LabelNotAllowedSystem      = "NOT_ALLOWED_SYSTEM"
	LabelForbiddenActionDir    = "FORBIDDEN_ACTION_DIR"
	LabelForbiddenCharSlash    = "FORBIDDEN_CHAR_SLASH"
	LabelDirAlreadyExists      = "DIRECTORY_ALREADY_EXISTS"
	LabelFileAlreadyExists     = "FILE_ALREADY_EXISTS"
	LabelUnableToCreateDir     = "UNABLE_TO_CREATE_DIRECTORY"
	LabelUnableToOpenDir       = "UNABLE_TO_OPEN_DIRECTORY"
	LabelErrorRenamingDir      = "ERROR_RENAMING_DIRECTORY"
	LabelErrorRenamingFile     = "ERROR_RENAMING_FILE"
	LabelErrorCopyingDir       = "ERROR_COPYING_DIRECTORY"
	LabelErrorCopyingFile      = "ERROR_COPYING_FILE"
	LabelErrorMovingDir        = "ERROR_MOVING_DIRECTORY"
	LabelErrorMovingFile       = "ERROR_MOVING_FILE"
	LabelErrorDeletingDir      = "ERROR_DELETING_DIRECTORY"
	LabelErrorDeletingFile     = "ERROR_DELETING_FILE"
	LabelErrorSavingFile       = "ERROR_SAVING_FILE"
	LabelErrorUploadingFile    = "ERROR_UPLOADING_FILE"
	LabelErrorExtractingFile   = "ERROR_EXTRACTING_FILE"
	LabelErrorCreatingZip      = "ERROR_CREATING_ZIP"
	LabelErrorServer           = "ERROR_SERVER"
	LabelUploadTooBig          = "UPLOAD_FILES_SMALLER_THAN"
	LabelStorageSizeExceed     = "STORAGE_SIZE_EXCEED"
	LabelMaxNumberOfFiles      = "MAX_NUMBER_OF_FILES"
	LabelImageTooWide          = "IMAGE_WIDTH_EXCEED"
	LabelImageTooHigh          = "IMAGE_HEIGHT_EXCEED"
	LabelImageTooNarrow        = "IMAGE_WIDTH_TOO_SMALL"
	LabelImageTooLow           = "IMAGE_HEIGHT_TOO_SMALL"
	LabelModuleNotFound        = "NOT_FOUND_SYSTEM_MODULE"
	LabelRangeNotSatisfiable   = "RANGE_NOT_SATISFIABLE"
	LabelStorageNotRegistered  = "STORAGE_NOT_REGISTERED"
	LabelInvalidConfigOption   = "INVALID_CONFIG_OPTION"
	LabelMissingS3Credentials  = "S3_CREDENTIALS_MISSING"
	LabelBackendFailure        = "BACKEND_FAILURE"
	LabelThumbnailNotSupported = "THUMBNAIL_NOT_SUPPORTED"
)

// PathError records an error and the operation and file path that caused it.
// Label carries the client facing message key and Args its parameters.
type PathError struct {
	Op    string
	Path  string
	Label string
	Args  []string
	Err   error
}

// Error implements the error interface
func (e *PathError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("%s %s: %v [%s]", e.Op, e.Path, e.Err, e.Label)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *PathError) Unwrap() error {
	return e.Err
}

// NewPathError builds a labeled error. Args default to the path.
func NewPathError(op, path, label string, err error, args ...string) *PathError {
	if len(args) == 0 && path != "" {
		args = []string{path}
	}
	return &PathError{Op: op, Path: path, Label: label, Args: args, Err: err}
}

// BackendError wraps a failed backend call so that it matches ErrBackend
// while keeping the original cause reachable through errors.Is and errors.As.
func BackendError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PathError
	if errors.As(err, &pe) && errors.Is(err, ErrBackend) {
		return err
	}
	return &PathError{
		Op:    op,
		Path:  path,
		Label: LabelBackendFailure,
		Args:  []string{path},
		Err:   fmt.Errorf("%w: %w", ErrBackend, err),
	}
}

// Kind classifies errors for callers that map them to a transport.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidPath
	KindForbidden
	KindConflict
	KindBackend
	KindConfiguration
	KindRange
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidPath:
		return "invalid_path"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindBackend:
		return "backend"
	case KindConfiguration:
		return "configuration"
	case KindRange:
		return "range_not_satisfiable"
	default:
		return "unknown"
	}
}

// KindOf reports the kind of err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrRangeNotSatisfiable):
		return KindRange
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidPath):
		return KindInvalidPath
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrBackend):
		return KindBackend
	default:
		return KindUnknown
	}
}

// StatusCode maps err to the HTTP status an API adapter should answer with.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidPath:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindRange:
		return http.StatusRequestedRangeNotSatisfiable
	default:
		return http.StatusInternalServerError
	}
}

// LabelOf returns the label of the outermost labeled error in the chain.
func LabelOf(err error) string {
	var pe *PathError
	if errors.As(err, &pe) {
		return pe.Label
	}
	return ""
}

// IsNotFound reports whether err indicates a missing item
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err indicates that the target already exists
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsForbidden reports whether err indicates a policy or permission denial
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

func labelFor(isDir bool, dirLabel, fileLabel string) string {
	if isDir {
		return dirLabel
	}
	return fileLabel
}
