package object

import (
	"bytes"
	"hash/crc32"
	"strings"
	"testing"
)

func TestPackIndexRoundTrip(t *testing.T) {
	var packBuf bytes.Buffer
	pw, err := NewPackWriter(&packBuf, 3)
	if err != nil {
		t.Fatalf("NewPackWriter: %v", err)
	}

	payloads := [][]byte{
		[]byte("first object"),
		[]byte("second object"),
		[]byte("third object"),
	}
	entries := make([]PackIndexEntry, 0, len(payloads))
	for _, p := range payloads {
		offset := pw.CurrentOffset()
		if err := pw.WriteEntry(PackBlob, p); err != nil {
			t.Fatalf("WriteEntry: %v", err)
		}
		entries = append(entries, PackIndexEntry{
			Hash:   HashObject(TypeBlob, p),
			Offset: offset,
			CRC32:  crc32.ChecksumIEEE(p),
		})
	}
	packChecksum, err := pw.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	var idxBuf bytes.Buffer
	if _, err := WritePackIndex(&idxBuf, entries, packChecksum); err != nil {
		t.Fatalf("WritePackIndex: %v", err)
	}

	idx, err := ReadPackIndex(idxBuf.Bytes())
	if err != nil {
		t.Fatalf("ReadPackIndex: %v", err)
	}
	if idx.PackChecksum != packChecksum {
		t.Fatalf("PackChecksum = %s, want %s", idx.PackChecksum, packChecksum)
	}
	if got := len(idx.Entries()); got != len(entries) {
		t.Fatalf("len(Entries) = %d, want %d", got, len(entries))
	}

	for _, want := range entries {
		got, ok := idx.Find(want.Hash)
		if !ok {
			t.Fatalf("Find(%s): not found", want.Hash)
		}
		if got.Offset != want.Offset || got.CRC32 != want.CRC32 {
			t.Fatalf("Find(%s) = %+v, want %+v", want.Hash, got, want)
		}
	}

	if _, ok := idx.Find(Hash(strings.Repeat("ef", 20))); ok {
		t.Fatal("Find of absent digest succeeded")
	}
}

func TestPackIndexEntriesSorted(t *testing.T) {
	entries := []PackIndexEntry{
		{Hash: HashObject(TypeBlob, []byte("zzz")), Offset: 12},
		{Hash: HashObject(TypeBlob, []byte("aaa")), Offset: 40},
		{Hash: HashObject(TypeBlob, []byte("mmm")), Offset: 99},
	}

	var buf bytes.Buffer
	if _, err := WritePackIndex(&buf, entries, HashObject(TypeBlob, []byte("pack"))); err != nil {
		t.Fatalf("WritePackIndex: %v", err)
	}
	idx, err := ReadPackIndex(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadPackIndex: %v", err)
	}

	sorted := idx.Entries()
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Hash >= sorted[i].Hash {
			t.Fatalf("entries not sorted: %s before %s", sorted[i-1].Hash, sorted[i].Hash)
		}
	}
}

func TestReadPackIndexRejectsCorruption(t *testing.T) {
	entries := []PackIndexEntry{
		{Hash: HashObject(TypeBlob, []byte("a")), Offset: 12},
	}
	var buf bytes.Buffer
	if _, err := WritePackIndex(&buf, entries, HashObject(TypeBlob, []byte("pack"))); err != nil {
		t.Fatalf("WritePackIndex: %v", err)
	}

	data := append([]byte(nil), buf.Bytes()...)
	data[10] ^= 0xff
	if _, err := ReadPackIndex(data); err == nil {
		t.Fatal("expected checksum error for corrupt index")
	}

	if _, err := ReadPackIndex([]byte("tiny")); err == nil {
		t.Fatal("expected error for short index")
	}
}
