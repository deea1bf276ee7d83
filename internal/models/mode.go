package models

import "fmt"

// RunMode selects which stages a collector invocation performs.
type RunMode string

const (
	// RunModeFull collects from every backend and uploads the results.
	RunModeFull RunMode = "full"
	// RunModeRetrieveOnly collects and reports without uploading.
	RunModeRetrieveOnly RunMode = "retrieve-only"
	// RunModeUploadOnly uploads a previously saved results file.
	RunModeUploadOnly RunMode = "upload-only"
)

func ParseRunMode(s string) (RunMode, error) {
	switch RunMode(s) {
	case RunModeFull, RunModeRetrieveOnly, RunModeUploadOnly:
		return RunMode(s), nil
	default:
		return "", fmt.Errorf("invalid run mode %q: must be %q, %q or %q", s, RunModeFull, RunModeRetrieveOnly, RunModeUploadOnly)
	}
}

// Collects reports whether the mode queries the configured backends.
func (m RunMode) Collects() bool {
	return m != RunModeUploadOnly
}

// Uploads reports whether the mode sends results to SCC.
func (m RunMode) Uploads() bool {
	return m != RunModeRetrieveOnly
}
