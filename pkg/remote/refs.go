package remote

import (
	"fmt"
	"io"
	"strings"

	"github.com/grit-scm/grit/pkg/object"
	"github.com/grit-scm/grit/pkg/pktline"
)

// zeroHash is advertised as the tip of an empty repository.
const zeroHash = object.Hash("0000000000000000000000000000000000000000")

// Ref is one advertised reference.
type Ref struct {
	Name string
	Hash object.Hash
}

// Advertisement is the parsed result of reference discovery: the
// advertised refs in server order, the capability set from the first
// ref line, and any symbolic ref declarations carried in it.
type Advertisement struct {
	Refs         []Ref
	Capabilities Capabilities
	Symrefs      map[string]string
}

// ParseAdvertisement reads a smart-HTTP ref advertisement for the given
// service: the service announcement line, a flush, the ref section, and
// the terminating flush. The first ref line carries the capability list
// after a NUL separator.
func ParseAdvertisement(r io.Reader, service string) (*Advertisement, error) {
	pr := pktline.NewReader(r)

	line, err := pr.Read()
	if err != nil {
		return nil, fmt.Errorf("read service announcement: %w", err)
	}
	if line.Kind != pktline.LineData {
		return nil, fmt.Errorf("%w: expected service announcement, got flush", ErrProtocol)
	}
	announced := strings.TrimSuffix(string(line.Payload), "\n")
	if announced != "# service="+service {
		return nil, fmt.Errorf("%w: unexpected service announcement %q", ErrProtocol, announced)
	}

	line, err = pr.Read()
	if err != nil {
		return nil, fmt.Errorf("read announcement terminator: %w", err)
	}
	if line.Kind != pktline.LineFlush {
		return nil, fmt.Errorf("%w: expected flush after service announcement", ErrProtocol)
	}

	adv := &Advertisement{
		Capabilities: ParseCapabilities(""),
		Symrefs:      make(map[string]string),
	}

	first := true
	for {
		line, err = pr.Read()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: advertisement missing terminating flush", ErrProtocol)
		}
		if err != nil {
			return nil, fmt.Errorf("read ref line: %w", err)
		}
		if line.Kind == pktline.LineFlush {
			break
		}

		payload := strings.TrimSuffix(string(line.Payload), "\n")
		if first {
			refPart, capsPart, found := strings.Cut(payload, "\x00")
			if !found {
				return nil, fmt.Errorf("%w: first ref line missing capability separator", ErrProtocol)
			}
			adv.Capabilities = ParseCapabilities(capsPart)
			adv.Symrefs = adv.Capabilities.Symrefs()
			payload = refPart
			first = false
		}

		ref, err := parseRefLine(payload)
		if err != nil {
			return nil, err
		}
		// An empty repository advertises a zero-digest placeholder
		// instead of refs.
		if ref.Name == "capabilities^{}" || ref.Hash == zeroHash {
			continue
		}
		adv.Refs = append(adv.Refs, ref)
	}

	return adv, nil
}

func parseRefLine(payload string) (Ref, error) {
	digest, name, found := strings.Cut(payload, " ")
	if !found || name == "" {
		return Ref{}, fmt.Errorf("%w: malformed ref line %q", ErrProtocol, payload)
	}
	h := object.Hash(digest)
	if err := object.ValidateHash(h); err != nil {
		return Ref{}, fmt.Errorf("%w: malformed ref digest %q", ErrProtocol, digest)
	}
	return Ref{Name: name, Hash: h}, nil
}

// FindRef returns the advertised ref with the given name.
func (a *Advertisement) FindRef(name string) (Ref, bool) {
	for _, r := range a.Refs {
		if r.Name == name {
			return r, true
		}
	}
	return Ref{}, false
}

// DefaultBranch resolves the remote's default branch name. It prefers
// the HEAD symref declaration, then falls back to matching the HEAD
// digest against an advertised branch, then to "main".
func (a *Advertisement) DefaultBranch() string {
	if target, ok := a.Symrefs["HEAD"]; ok {
		return strings.TrimPrefix(target, "refs/heads/")
	}
	head, ok := a.FindRef("HEAD")
	if !ok {
		return "main"
	}
	for _, r := range a.Refs {
		if r.Name != "HEAD" && strings.HasPrefix(r.Name, "refs/heads/") && r.Hash == head.Hash {
			return strings.TrimPrefix(r.Name, "refs/heads/")
		}
	}
	return "main"
}

// SelectBranchTip resolves the tip to fetch for the requested branch.
// An empty branch selects the remote default. The returned branch is
// the resolved short name.
func (a *Advertisement) SelectBranchTip(branch string) (string, object.Hash, error) {
	if len(a.Refs) == 0 {
		return "", "", fmt.Errorf("remote repository is empty")
	}
	if branch == "" {
		branch = a.DefaultBranch()
	}
	if ref, ok := a.FindRef("refs/heads/" + branch); ok {
		return branch, ref.Hash, nil
	}
	// A detached remote HEAD still allows cloning the default branch.
	if head, ok := a.FindRef("HEAD"); ok && branch == a.DefaultBranch() {
		return branch, head.Hash, nil
	}
	return "", "", fmt.Errorf("remote branch %q not found", branch)
}
