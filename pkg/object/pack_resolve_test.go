package object

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func buildPack(t *testing.T, numObjects uint32, write func(*PackWriter)) []byte {
	t.Helper()
	var buf bytes.Buffer
	pw, err := NewPackWriter(&buf, numObjects)
	if err != nil {
		t.Fatalf("NewPackWriter: %v", err)
	}
	write(pw)
	if _, err := pw.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return buf.Bytes()
}

func TestResolvePackOfsDeltaChain(t *testing.T) {
	base := []byte("base object contents")
	mid := []byte("middle version")
	tip := []byte("tip version, rebuilt from a chain")

	var baseOffset, midOffset uint64
	data := buildPack(t, 3, func(pw *PackWriter) {
		baseOffset = pw.CurrentOffset()
		if err := pw.WriteEntry(PackBlob, base); err != nil {
			t.Fatalf("WriteEntry base: %v", err)
		}
		midOffset = pw.CurrentOffset()
		if err := pw.WriteOfsDelta(baseOffset, base, mid); err != nil {
			t.Fatalf("WriteOfsDelta mid: %v", err)
		}
		if err := pw.WriteOfsDelta(midOffset, mid, tip); err != nil {
			t.Fatalf("WriteOfsDelta tip: %v", err)
		}
	})

	pf, err := ReadPackResolved(data)
	if err != nil {
		t.Fatalf("ReadPackResolved: %v", err)
	}
	for i, want := range [][]byte{base, mid, tip} {
		if pf.Entries[i].Type != PackBlob {
			t.Fatalf("entry[%d].Type = %d, want PackBlob", i, pf.Entries[i].Type)
		}
		if !bytes.Equal(pf.Entries[i].Data, want) {
			t.Fatalf("entry[%d].Data = %q, want %q", i, pf.Entries[i].Data, want)
		}
	}
	// The wire encoding stays visible after resolution.
	if pf.Entries[2].OriginalType != PackOfsDelta {
		t.Fatalf("entry[2].OriginalType = %d, want PackOfsDelta", pf.Entries[2].OriginalType)
	}
}

func TestResolvePackRefDeltaInPack(t *testing.T) {
	base := []byte("ref-delta base")
	target := []byte("ref-delta target")
	baseHash := HashObject(TypeBlob, base)

	// The delta precedes its base: ref deltas carry no ordering
	// constraint, so resolution must still converge.
	data := buildPack(t, 2, func(pw *PackWriter) {
		if err := pw.WriteRefDelta(baseHash, base, target); err != nil {
			t.Fatalf("WriteRefDelta: %v", err)
		}
		if err := pw.WriteEntry(PackBlob, base); err != nil {
			t.Fatalf("WriteEntry: %v", err)
		}
	})

	pf, err := ReadPackResolved(data)
	if err != nil {
		t.Fatalf("ReadPackResolved: %v", err)
	}
	if !bytes.Equal(pf.Entries[0].Data, target) {
		t.Fatalf("resolved data = %q, want %q", pf.Entries[0].Data, target)
	}
}

func TestResolvePackRefDeltaFromStore(t *testing.T) {
	s := newTestStore(t)
	base := []byte("stored base object")
	baseHash, err := s.Write(TypeBlob, base)
	if err != nil {
		t.Fatalf("Write base: %v", err)
	}
	target := []byte("target built on a thin-pack base")

	data := buildPack(t, 1, func(pw *PackWriter) {
		if err := pw.WriteRefDelta(baseHash, base, target); err != nil {
			t.Fatalf("WriteRefDelta: %v", err)
		}
	})

	pf, err := ReadPack(data)
	if err != nil {
		t.Fatalf("ReadPack: %v", err)
	}

	// Without a lookup the base digest is unknown.
	if _, err := ResolvePackEntries(pf.Entries); !errors.Is(err, ErrUnresolvedBase) {
		t.Fatalf("no lookup: err = %v, want ErrUnresolvedBase", err)
	}

	resolved, err := ResolvePackEntriesWithBase(pf.Entries, s.Read)
	if err != nil {
		t.Fatalf("ResolvePackEntriesWithBase: %v", err)
	}
	if !bytes.Equal(resolved[0].Data, target) {
		t.Fatalf("resolved data = %q, want %q", resolved[0].Data, target)
	}
	if resolved[0].Type != PackBlob {
		t.Fatalf("resolved type = %d, want PackBlob", resolved[0].Type)
	}
}

func TestResolvePackOfsDeltaDistanceOutOfRange(t *testing.T) {
	// Distance 0 is self-referential and a large distance points before
	// the start of the pack; both break the strictly-backward rule. A
	// writer never emits either, so the entry is framed by hand.
	delta := buildInsertOnlyDelta([]byte("phantom base"), []byte("target"))
	compressed, err := compressPackPayload(delta)
	if err != nil {
		t.Fatalf("compressPackPayload: %v", err)
	}

	for _, distance := range []uint64{0, 9999} {
		var entry bytes.Buffer
		entry.Write(encodePackEntryHeader(PackOfsDelta, uint64(len(delta))))
		entry.Write(encodeOfsDeltaDistance(distance))
		entry.Write(compressed)

		data := assemblePack(t, 1, entry.Bytes())
		pf, err := ReadPack(data)
		if err != nil {
			t.Fatalf("ReadPack (distance %d): %v", distance, err)
		}
		if _, err := ResolvePackEntries(pf.Entries); !errors.Is(err, ErrDeltaCorrupt) {
			t.Fatalf("distance %d: err = %v, want ErrDeltaCorrupt", distance, err)
		}
	}
}

func TestResolvePackStalledDeltaChain(t *testing.T) {
	ghost := Hash(strings.Repeat("ab", 20))
	mid := []byte("middle, never materialized")
	tip := []byte("tip of a stalled chain")

	var refOffset uint64
	data := buildPack(t, 2, func(pw *PackWriter) {
		refOffset = pw.CurrentOffset()
		if err := pw.WriteRefDelta(ghost, []byte("ghost base"), mid); err != nil {
			t.Fatalf("WriteRefDelta: %v", err)
		}
		if err := pw.WriteOfsDelta(refOffset, mid, tip); err != nil {
			t.Fatalf("WriteOfsDelta: %v", err)
		}
	})

	pf, err := ReadPack(data)
	if err != nil {
		t.Fatalf("ReadPack: %v", err)
	}

	// The whole chain stalls on the missing root base; the root cause is
	// reported, not the downstream ofs delta waiting on it.
	s := newTestStore(t)
	if _, err := ResolvePackEntriesWithBase(pf.Entries, s.Read); !errors.Is(err, ErrUnresolvedBase) {
		t.Fatalf("err = %v, want ErrUnresolvedBase", err)
	}
}

func TestResolvePackUnresolvedBase(t *testing.T) {
	missing := Hash(strings.Repeat("cd", 20))
	data := buildPack(t, 1, func(pw *PackWriter) {
		if err := pw.WriteRefDelta(missing, []byte("ghost base"), []byte("unreachable")); err != nil {
			t.Fatalf("WriteRefDelta: %v", err)
		}
	})

	pf, err := ReadPack(data)
	if err != nil {
		t.Fatalf("ReadPack: %v", err)
	}
	s := newTestStore(t)
	if _, err := ResolvePackEntriesWithBase(pf.Entries, s.Read); !errors.Is(err, ErrUnresolvedBase) {
		t.Fatalf("err = %v, want ErrUnresolvedBase", err)
	}
}

func TestIndexPackWritesObjects(t *testing.T) {
	s := newTestStore(t)

	blob := []byte("file contents\n")
	blobHash := HashObject(TypeBlob, blob)
	treeData, err := MarshalTree(&TreeObj{Entries: []TreeEntry{
		{Mode: TreeModeFile, Name: "file.txt", Target: blobHash},
	}})
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	treeHash := HashObject(TypeTree, treeData)

	data := buildPack(t, 2, func(pw *PackWriter) {
		if err := pw.WriteEntry(PackTree, treeData); err != nil {
			t.Fatalf("WriteEntry tree: %v", err)
		}
		if err := pw.WriteEntry(PackBlob, blob); err != nil {
			t.Fatalf("WriteEntry blob: %v", err)
		}
	})

	written, err := IndexPack(s, data)
	if err != nil {
		t.Fatalf("IndexPack: %v", err)
	}
	if written != 2 {
		t.Fatalf("written = %d, want 2", written)
	}
	if !s.Has(blobHash) || !s.Has(treeHash) {
		t.Fatal("indexed objects missing from store")
	}

	// Indexing the same pack again writes nothing new.
	written, err = IndexPack(s, data)
	if err != nil {
		t.Fatalf("IndexPack again: %v", err)
	}
	if written != 0 {
		t.Fatalf("second index written = %d, want 0", written)
	}
}

func TestIndexPackRejectsCorruptPack(t *testing.T) {
	s := newTestStore(t)
	data := buildPack(t, 1, func(pw *PackWriter) {
		if err := pw.WriteEntry(PackBlob, []byte("x")); err != nil {
			t.Fatalf("WriteEntry: %v", err)
		}
	})
	data[len(data)-1] ^= 0xff

	if _, err := IndexPack(s, data); err == nil {
		t.Fatal("expected error for corrupt pack")
	}
}
