// omp-launcher/provision/errors.go
package provision

import (
	"errors"
	"fmt"

	"omp-launcher/utils"
)

var (
	ErrDownloadAborted = utils.ErrDownloadAborted
	ErrNetwork         = utils.ErrNetwork
	ErrFilesystem      = utils.ErrFilesystem

	ErrChecksumMismatch      = errors.New("checksum mismatch")
	ErrExtraction            = errors.New("extraction failed")
	ErrUpdateInfoUnavailable = errors.New("update info unavailable")
	ErrRetriesExhausted      = errors.New("download retries exhausted")
	ErrAlreadyRunning        = errors.New("provisioning already running")
	ErrInvalidTable          = errors.New("invalid reference table")
)

// StageError records which stage and operation an error came from.
type StageError struct {
	Stage Stage
	Op    string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Op, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// UserMessage turns a failed run into the status line shown on the loading screen.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var stageErr *StageError
	plugin := errors.As(err, &stageErr) && stageErr.Stage == DownloadingSecondaryPlugin

	switch {
	case errors.Is(err, ErrAlreadyRunning):
		return "Resources are already being prepared."
	case errors.Is(err, ErrDownloadAborted):
		return "Download cancelled."
	case errors.Is(err, ErrNetwork) && plugin:
		return "Failed to download OMP plugin. Please check your connection."
	case errors.Is(err, ErrNetwork):
		return "Failed to download SAMP files. Please check your connection."
	case errors.Is(err, ErrRetriesExhausted):
		return "Downloaded files keep failing validation. Please restart the application."
	case errors.Is(err, ErrExtraction):
		return "Failed to extract SAMP files. Please restart the application."
	default:
		return "File validation failed. Please restart the application."
	}
}
