// Package platform decides whether a package applies to the host it runs on.
package platform

import (
	"context"
	"strings"
	"sync"

	"github.com/open-edge-platform/tpfetch/internal/manifest"
	"github.com/open-edge-platform/tpfetch/internal/utils/logger"
	"github.com/open-edge-platform/tpfetch/internal/utils/system"
)

// Host identifies the running distribution.
type Host struct {
	Distro  string
	Version string
}

func (h Host) String() string {
	return h.Distro + " " + h.Version
}

// HostProvider detects the running host.
type HostProvider func(ctx context.Context) (Host, error)

// DetectHost reads the host distribution from the operating system.
func DetectHost(ctx context.Context) (Host, error) {
	info, err := system.GetHostOsInfo(ctx)
	if err != nil {
		return Host{}, err
	}
	return Host{Distro: strings.ToLower(info.ID), Version: info.Version}, nil
}

// PlatformMatch reports whether host is described by the exclusion spec.
// Distribution names compare case-insensitively.
func PlatformMatch(host Host, spec manifest.Distribution) bool {
	if !strings.EqualFold(strings.TrimSpace(host.Distro), strings.TrimSpace(spec.Name)) {
		return false
	}
	return VersionMatch(host.Version, spec.Version)
}

// Matcher filters packages by their platform exclusions. The host is
// detected once, on the first package that carries exclusions.
type Matcher struct {
	detect HostProvider

	once  sync.Once
	host  Host
	known bool
}

// NewMatcher returns a Matcher using detect, or DetectHost when nil.
func NewMatcher(detect HostProvider) *Matcher {
	if detect == nil {
		detect = DetectHost
	}
	return &Matcher{detect: detect}
}

// NewStaticMatcher returns a Matcher for a fixed host.
func NewStaticMatcher(host Host) *Matcher {
	return NewMatcher(func(context.Context) (Host, error) { return host, nil })
}

func (m *Matcher) resolveHost(ctx context.Context) (Host, bool) {
	m.once.Do(func() {
		host, err := m.detect(ctx)
		if err != nil {
			logger.Logger().Warnf("Unable to detect host platform, exclusions will not apply: %v", err)
			return
		}
		logger.Logger().Debugf("Detected host platform %s", host)
		m.host, m.known = host, true
	})
	return m.host, m.known
}

// Excluded returns the first exclusion of pkg matching the host.
func (m *Matcher) Excluded(ctx context.Context, pkg manifest.Package) (manifest.Distribution, bool) {
	exclusions := pkg.Exclusions()
	if len(exclusions) == 0 {
		return manifest.Distribution{}, false
	}
	host, ok := m.resolveHost(ctx)
	if !ok {
		return manifest.Distribution{}, false
	}
	for _, spec := range exclusions {
		if PlatformMatch(host, spec) {
			return spec, true
		}
	}
	return manifest.Distribution{}, false
}

// Applies reports whether pkg should be processed on this host.
func (m *Matcher) Applies(ctx context.Context, pkg manifest.Package) bool {
	_, excluded := m.Excluded(ctx, pkg)
	return !excluded
}
