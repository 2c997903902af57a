package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// treeSortKey orders entries the way Git does: byte-wise by name, with
// directories compared as if the name had a trailing slash.
func treeSortKey(e TreeEntry) string {
	if e.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

// MarshalTree serializes a TreeObj to the canonical binary encoding:
// per entry "<mode> <name>\0" followed by the 20 raw digest bytes.
// Entries are serialized in sorted order regardless of input order, so
// identical entry sets always yield identical digests.
func MarshalTree(tr *TreeObj) ([]byte, error) {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return treeSortKey(sorted[i]) < treeSortKey(sorted[j])
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		if err := validateTreeMode(e.Mode); err != nil {
			return nil, fmt.Errorf("marshal tree entry %q: %w", e.Name, err)
		}
		if e.Name == "" || strings.ContainsAny(e.Name, "/\x00") {
			return nil, fmt.Errorf("marshal tree: invalid entry name %q", e.Name)
		}
		raw, err := hashHexToBytes(e.Target)
		if err != nil {
			return nil, fmt.Errorf("marshal tree entry %q: %w", e.Name, err)
		}
		buf.WriteString(e.Mode)
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(raw)
	}
	return buf.Bytes(), nil
}

// UnmarshalTree parses a TreeObj from its serialized form.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	rest := data
	for len(rest) > 0 {
		sp := bytes.IndexByte(rest, ' ')
		if sp <= 0 {
			return nil, fmt.Errorf("unmarshal tree: %w: missing mode separator", ErrMalformedObject)
		}
		mode := string(rest[:sp])
		if err := validateTreeMode(mode); err != nil {
			return nil, fmt.Errorf("unmarshal tree: %w: %v", ErrMalformedObject, err)
		}
		rest = rest[sp+1:]

		nul := bytes.IndexByte(rest, 0)
		if nul <= 0 {
			return nil, fmt.Errorf("unmarshal tree: %w: missing name terminator", ErrMalformedObject)
		}
		name := string(rest[:nul])
		rest = rest[nul+1:]

		if len(rest) < RawHashSize {
			return nil, fmt.Errorf("unmarshal tree: %w: truncated digest for %q", ErrMalformedObject, name)
		}
		target, err := hashFromBytes(rest[:RawHashSize])
		if err != nil {
			return nil, fmt.Errorf("unmarshal tree: %w: %v", ErrMalformedObject, err)
		}
		rest = rest[RawHashSize:]

		tr.Entries = append(tr.Entries, TreeEntry{
			Mode:   mode,
			Name:   name,
			Target: target,
		})
	}
	return tr, nil
}

func validateTreeMode(mode string) error {
	switch mode {
	case TreeModeDir, TreeModeFile, TreeModeExecutable, TreeModeSymlink:
		return nil
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// ---------------------------------------------------------------------------
// Signature
// ---------------------------------------------------------------------------

// formatSignature renders "Name <email> timestamp timezone".
func formatSignature(s Signature) string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When, s.Timezone)
}

func parseSignature(raw string) (Signature, error) {
	open := strings.Index(raw, " <")
	close := strings.Index(raw, "> ")
	if open < 0 || close < open {
		return Signature{}, fmt.Errorf("missing email brackets in %q", raw)
	}
	name := raw[:open]
	email := raw[open+2 : close]

	tail := strings.Fields(raw[close+2:])
	if len(tail) != 2 {
		return Signature{}, fmt.Errorf("missing timestamp/timezone in %q", raw)
	}
	when, err := strconv.ParseInt(tail[0], 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("bad timestamp %q: %w", tail[0], err)
	}
	return Signature{
		Name:     name,
		Email:    email,
		When:     when,
		Timezone: tail[1],
	}, nil
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H     (zero or more, order preserved)
//	author Name <email> ts tz
//	committer Name <email> ts tz
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", string(c.TreeHash))
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", string(p))
	}
	fmt.Fprintf(&buf, "author %s\n", formatSignature(c.Author))
	fmt.Fprintf(&buf, "committer %s\n", formatSignature(c.Committer))
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a CommitObj from its serialized form. The
// tree, author, and committer headers are mandatory.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal commit: %w: missing header/message separator", ErrMalformedObject)
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	c := &CommitObj{Message: message}
	var sawAuthor, sawCommitter bool
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: %w: malformed header line %q", ErrMalformedObject, line)
		}
		switch key {
		case "tree":
			if err := ValidateHash(Hash(val)); err != nil {
				return nil, fmt.Errorf("unmarshal commit: %w: tree: %v", ErrMalformedObject, err)
			}
			c.TreeHash = Hash(val)
		case "parent":
			if err := ValidateHash(Hash(val)); err != nil {
				return nil, fmt.Errorf("unmarshal commit: %w: parent: %v", ErrMalformedObject, err)
			}
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			sig, err := parseSignature(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: %w: author: %v", ErrMalformedObject, err)
			}
			c.Author = sig
			sawAuthor = true
		case "committer":
			sig, err := parseSignature(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: %w: committer: %v", ErrMalformedObject, err)
			}
			c.Committer = sig
			sawCommitter = true
		default:
			return nil, fmt.Errorf("unmarshal commit: %w: unknown header key %q", ErrMalformedObject, key)
		}
	}
	if c.TreeHash == "" {
		return nil, fmt.Errorf("unmarshal commit: %w: missing tree header", ErrMalformedObject)
	}
	if !sawAuthor || !sawCommitter {
		return nil, fmt.Errorf("unmarshal commit: %w: missing author or committer", ErrMalformedObject)
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// TagObj
// ---------------------------------------------------------------------------

// MarshalTag serializes a TagObj:
//
//	object H
//	type kind
//	tag name
//	tagger Name <email> ts tz   (optional)
//
//	message
func MarshalTag(t *TagObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", string(t.TargetHash))
	fmt.Fprintf(&buf, "type %s\n", string(t.TargetType))
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	if t.HasTagger {
		fmt.Fprintf(&buf, "tagger %s\n", formatSignature(t.Tagger))
	}
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}

// UnmarshalTag parses a TagObj from its serialized form.
func UnmarshalTag(data []byte) (*TagObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal tag: %w: missing header/message separator", ErrMalformedObject)
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	t := &TagObj{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal tag: %w: malformed header line %q", ErrMalformedObject, line)
		}
		switch key {
		case "object":
			if err := ValidateHash(Hash(val)); err != nil {
				return nil, fmt.Errorf("unmarshal tag: %w: object: %v", ErrMalformedObject, err)
			}
			t.TargetHash = Hash(val)
		case "type":
			kind, err := ParseObjectType(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal tag: %w: %v", ErrMalformedObject, err)
			}
			t.TargetType = kind
		case "tag":
			t.Name = val
		case "tagger":
			sig, err := parseSignature(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal tag: %w: tagger: %v", ErrMalformedObject, err)
			}
			t.Tagger = sig
			t.HasTagger = true
		default:
			return nil, fmt.Errorf("unmarshal tag: %w: unknown header key %q", ErrMalformedObject, key)
		}
	}
	if t.TargetHash == "" || t.TargetType == "" {
		return nil, fmt.Errorf("unmarshal tag: %w: missing object or type header", ErrMalformedObject)
	}
	return t, nil
}
