package remote

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// UploadPackService is the service name used for fetch negotiation.
const UploadPackService = "git-upload-pack"

// Capabilities this client understands and will request when the server
// advertises them.
const (
	capSideBand64k = "side-band-64k"
	capAgent       = "agent=grit/0.1.0"
)

// ErrProtocol reports unexpected framing in a server response: a
// missing flush, a malformed ref line, or an out-of-place packet.
var ErrProtocol = errors.New("protocol violation")

// RemoteError is a fatal condition reported by the server over the
// sideband error channel.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: %s", e.Message)
}

// Capabilities is a set of protocol capabilities.
type Capabilities struct {
	set map[string]struct{}
}

// ParseCapabilities parses a space-separated capability string as sent
// on the first advertised ref line.
func ParseCapabilities(raw string) Capabilities {
	caps := Capabilities{set: make(map[string]struct{})}
	for _, c := range strings.Fields(raw) {
		caps.set[c] = struct{}{}
	}
	return caps
}

// Has returns true if the capability is present.
func (c Capabilities) Has(name string) bool {
	_, ok := c.set[name]
	return ok
}

// List returns the capabilities in sorted order.
func (c Capabilities) List() []string {
	names := make([]string, 0, len(c.set))
	for k := range c.set {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Symrefs extracts symbolic ref declarations (e.g. HEAD -> refs/heads/main)
// from capability entries of the form "symref=FROM:TO".
func (c Capabilities) Symrefs() map[string]string {
	out := make(map[string]string)
	for k := range c.set {
		if !strings.HasPrefix(k, "symref=") {
			continue
		}
		from, to, ok := strings.Cut(strings.TrimPrefix(k, "symref="), ":")
		if ok && from != "" && to != "" {
			out[from] = to
		}
	}
	return out
}
