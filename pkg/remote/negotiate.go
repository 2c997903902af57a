package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grit-scm/grit/pkg/object"
	"github.com/grit-scm/grit/pkg/pktline"
)

// NegotiationState tracks the fetch conversation. Transitions are
// strictly forward; calling a step out of order is a programming error
// surfaced as a plain error rather than a panic.
type NegotiationState int

const (
	StateStart NegotiationState = iota
	StateRefsDiscovered
	StateWantsSent
	StatePackReceived
	StateDone
)

func (s NegotiationState) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateRefsDiscovered:
		return "refs-discovered"
	case StateWantsSent:
		return "wants-sent"
	case StatePackReceived:
		return "pack-received"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Negotiator drives a full clone against one remote: discover refs,
// send wants, receive and index the pack.
type Negotiator struct {
	client   *Client
	state    NegotiationState
	progress func(string)

	advertisement *Advertisement
	sideband      bool
}

// NegotiatorOption configures a Negotiator.
type NegotiatorOption func(*Negotiator)

// WithProgress installs a sink for server progress messages.
func WithProgress(fn func(string)) NegotiatorOption {
	return func(n *Negotiator) { n.progress = fn }
}

// NewNegotiator creates a negotiator in the start state.
func NewNegotiator(client *Client, opts ...NegotiatorOption) *Negotiator {
	n := &Negotiator{client: client, state: StateStart}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// State returns the current negotiation state.
func (n *Negotiator) State() NegotiationState {
	return n.state
}

func (n *Negotiator) advance(from, to NegotiationState) error {
	if n.state != from {
		return fmt.Errorf("negotiator in state %s, expected %s", n.state, from)
	}
	n.state = to
	return nil
}

// DiscoverRefs performs reference discovery and records the result.
func (n *Negotiator) DiscoverRefs(ctx context.Context) (*Advertisement, error) {
	if err := n.advance(StateStart, StateRefsDiscovered); err != nil {
		return nil, err
	}
	adv, err := n.client.DiscoverRefs(ctx)
	if err != nil {
		n.state = StateStart
		return nil, err
	}
	n.advertisement = adv
	n.sideband = adv.Capabilities.Has(capSideBand64k)
	return adv, nil
}

// FetchPack sends the wants for the given tips and returns the raw
// received pack bytes, verified but not yet indexed.
func (n *Negotiator) FetchPack(ctx context.Context, wants []object.Hash) ([]byte, error) {
	if err := n.advance(StateRefsDiscovered, StateWantsSent); err != nil {
		return nil, err
	}

	body, err := buildWantRequest(wants, n.sideband)
	if err != nil {
		n.state = StateRefsDiscovered
		return nil, err
	}

	stream, err := n.client.UploadPack(ctx, body)
	if err != nil {
		n.state = StateRefsDiscovered
		return nil, err
	}
	defer stream.Close()

	pack, err := readUploadPackResponse(stream, n.sideband, n.progress)
	if err != nil {
		return nil, err
	}
	if err := n.advance(StateWantsSent, StatePackReceived); err != nil {
		return nil, err
	}
	return pack, nil
}

// buildWantRequest frames the negotiation body: one want line per
// deduplicated tip, capabilities on the first, then flush and done.
func buildWantRequest(wants []object.Hash, sideband bool) ([]byte, error) {
	if len(wants) == 0 {
		return nil, fmt.Errorf("no tips to fetch")
	}

	seen := make(map[object.Hash]struct{}, len(wants))
	var buf bytes.Buffer
	w := pktline.NewWriter(&buf)

	first := true
	for _, h := range wants {
		if err := object.ValidateHash(h); err != nil {
			return nil, fmt.Errorf("invalid want %q: %w", h, err)
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}

		line := fmt.Sprintf("want %s", h)
		if first {
			caps := capAgent
			if sideband {
				caps = capSideBand64k + " " + caps
			}
			line += " " + caps
			first = false
		}
		if err := w.WriteString(line + "\n"); err != nil {
			return nil, err
		}
	}
	if err := w.WriteFlush(); err != nil {
		return nil, err
	}
	if err := w.WriteString("done\n"); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readUploadPackResponse consumes the acknowledgment section and
// returns the pack bytes that follow, demultiplexing sideband frames
// when negotiated.
func readUploadPackResponse(r io.Reader, sideband bool, onProgress func(string)) ([]byte, error) {
	pr := pktline.NewReader(r)

	// A full clone gets a single NAK before the pack.
	line, err := pr.Read()
	if err != nil {
		return nil, fmt.Errorf("read acknowledgment: %w", err)
	}
	if line.Kind != pktline.LineData {
		return nil, fmt.Errorf("%w: expected acknowledgment, got flush", ErrProtocol)
	}
	ack := strings.TrimSuffix(string(line.Payload), "\n")
	if ack != "NAK" && !strings.HasPrefix(ack, "ACK ") {
		return nil, fmt.Errorf("%w: unexpected acknowledgment %q", ErrProtocol, ack)
	}

	if sideband {
		return demuxSideband(pr, onProgress)
	}

	// Without sideband the pack follows as a raw byte stream.
	pack, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pack stream: %w", err)
	}
	return pack, nil
}

// CloneResult summarizes a completed clone negotiation.
type CloneResult struct {
	Refs           []Ref
	Branch         string
	Tip            object.Hash
	ObjectsWritten int
}

// Clone runs the whole conversation: discover refs, select the tip for
// the requested branch (remote default when empty), fetch the pack, and
// index every object into the store.
func (n *Negotiator) Clone(ctx context.Context, store *object.Store, branch string) (*CloneResult, error) {
	adv, err := n.DiscoverRefs(ctx)
	if err != nil {
		return nil, err
	}

	resolved, tip, err := adv.SelectBranchTip(branch)
	if err != nil {
		return nil, err
	}

	pack, err := n.FetchPack(ctx, []object.Hash{tip})
	if err != nil {
		return nil, err
	}

	written, err := object.IndexPack(store, pack)
	if err != nil {
		return nil, fmt.Errorf("index received pack: %w", err)
	}
	if err := n.advance(StatePackReceived, StateDone); err != nil {
		return nil, err
	}

	return &CloneResult{
		Refs:           adv.Refs,
		Branch:         resolved,
		Tip:            tip,
		ObjectsWritten: written,
	}, nil
}
