package system

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/open-edge-platform/tpfetch/internal/utils/logger"
	"github.com/open-edge-platform/tpfetch/internal/utils/shell"
)

var (
	OsReleaseFile = "/etc/os-release"
)

// OsInfo identifies the host distribution. ID is the lower-case
// distribution identifier ("ubuntu", "centos") that manifests refer to.
type OsInfo struct {
	ID      string
	Name    string
	Version string
}

// GetHostOsInfo detects the host distribution from /etc/os-release,
// falling back to lsb_release.
func GetHostOsInfo(ctx context.Context) (*OsInfo, error) {
	log := logger.Logger()
	info := &OsInfo{}

	if file, err := os.Open(OsReleaseFile); err == nil {
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			parts := strings.SplitN(scanner.Text(), "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			value := strings.Trim(strings.TrimSpace(parts[1]), "\"'")
			switch key {
			case "ID":
				info.ID = strings.ToLower(value)
			case "NAME":
				info.Name = value
			case "VERSION_ID":
				info.Version = value
			}
		}
		if err := scanner.Err(); err != nil {
			return info, fmt.Errorf("error reading %s: %w", OsReleaseFile, err)
		}
		if info.ID != "" && info.Version != "" {
			log.Debugf("Detected OS info: %s %s", info.ID, info.Version)
			return info, nil
		}
	}

	output, err := shell.ExecCmd(ctx, "", "lsb_release -si")
	if err != nil {
		return info, fmt.Errorf("failed to get host OS name: %w", err)
	}
	name := strings.TrimSpace(output)
	if name == "" {
		return info, fmt.Errorf("failed to detect host OS info")
	}
	info.Name = name
	info.ID = strings.ToLower(strings.Fields(name)[0])

	output, err = shell.ExecCmd(ctx, "", "lsb_release -sr")
	if err != nil {
		return info, fmt.Errorf("failed to get host OS version: %w", err)
	}
	info.Version = strings.TrimSpace(output)
	if info.Version == "" {
		return info, fmt.Errorf("failed to detect host OS info")
	}

	log.Debugf("Detected OS info: %s %s", info.ID, info.Version)
	return info, nil
}
