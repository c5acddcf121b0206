// omp-launcher/provision/stage.go
package provision

import "fmt"

// Stage is the step of the provisioning flow currently shown to the user.
type Stage int

const (
	Initializing Stage = iota
	ValidatingFiles
	DownloadingPrimaryArchive
	DownloadingSecondaryPlugin
	Extracting
	Complete
	Failed
)

var stageNames = map[Stage]string{
	Initializing:               "initializing",
	ValidatingFiles:            "validating_files",
	DownloadingPrimaryArchive:  "downloading_samp",
	DownloadingSecondaryPlugin: "downloading_omp",
	Extracting:                 "extracting",
	Complete:                   "complete",
	Failed:                     "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Downloading reports whether the stage shows a progress bar.
func (s Stage) Downloading() bool {
	return s == DownloadingPrimaryArchive || s == DownloadingSecondaryPlugin
}

// Terminal reports whether a run that reached s has ended.
func (s Stage) Terminal() bool {
	return s == Complete || s == Failed
}
