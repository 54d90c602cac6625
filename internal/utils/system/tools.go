package system

import (
	"fmt"
	"strings"

	"github.com/open-edge-platform/tpfetch/internal/utils/shell"
)

// ToolMissingError reports required executables absent from PATH.
type ToolMissingError struct {
	Tools []string
}

func (e *ToolMissingError) Error() string {
	return fmt.Sprintf("please install %s", strings.Join(e.Tools, ", "))
}

// RequiredTools lists the executables the pipeline shells out to on hostOS.
func RequiredTools(hostOS string) []string {
	if hostOS == "windows" {
		return []string{"7z", "patch"}
	}
	return []string{"autoconf", "automake", "bzip2", "libtool", "patch", "unzip"}
}

// CheckRequiredTools verifies every tool resolves with the Default executor.
func CheckRequiredTools(tools []string) error {
	var missing []string
	for _, tool := range tools {
		exists, err := shell.IsCommandExist(tool)
		if err != nil {
			return fmt.Errorf("failed to check for %s: %w", tool, err)
		}
		if !exists {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return &ToolMissingError{Tools: missing}
	}
	return nil
}
