package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// PackEntry represents one object entry in a pack stream. For delta
// entries, Type stays OfsDelta/RefDelta until resolution rewrites it to
// the base object kind; OriginalType always records the wire encoding.
type PackEntry struct {
	Type         PackObjectType
	OriginalType PackObjectType
	Size         uint64
	Offset       uint64 // byte offset of the entry header within the pack
	BaseDistance uint64 // OFS_DELTA: backward distance to the base entry
	BaseRef      Hash   // REF_DELTA: digest of the base object
	Data         []byte
}

// PackFile is the decoded content of a full pack stream.
type PackFile struct {
	Header   PackHeader
	Entries  []PackEntry
	Checksum Hash
}

// ReadPack parses a full pack byte slice, verifies the trailer checksum,
// and returns the raw (unresolved) entries.
func ReadPack(data []byte) (*PackFile, error) {
	if len(data) < packHeaderSize+sha1.Size {
		return nil, fmt.Errorf("%w: pack too short: %d bytes", ErrTruncatedPack, len(data))
	}

	payload := data[:len(data)-sha1.Size]
	trailer := data[len(data)-sha1.Size:]

	sum := sha1.Sum(payload)
	if !bytes.Equal(sum[:], trailer) {
		return nil, fmt.Errorf("%w: trailer checksum mismatch", ErrTruncatedPack)
	}

	header, err := UnmarshalPackHeader(payload[:packHeaderSize])
	if err != nil {
		return nil, err
	}

	offset := packHeaderSize
	entries := make([]PackEntry, 0, header.NumObjects)
	for i := uint32(0); i < header.NumObjects; i++ {
		entryOffset := uint64(offset)
		objType, size, n, err := decodePackEntryHeader(payload[offset:])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		offset += n

		entry := PackEntry{
			Type:         objType,
			OriginalType: objType,
			Size:         size,
			Offset:       entryOffset,
		}

		switch objType {
		case PackCommit, PackTree, PackBlob, PackTag:
		case PackOfsDelta:
			distance, n, err := decodeOfsDeltaDistance(payload[offset:])
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			offset += n
			entry.BaseDistance = distance
		case PackRefDelta:
			if len(payload[offset:]) < RawHashSize {
				return nil, fmt.Errorf("entry %d: %w: ref-delta base digest truncated", i, ErrTruncatedPack)
			}
			base, err := hashFromBytes(payload[offset : offset+RawHashSize])
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			offset += RawHashSize
			entry.BaseRef = base
		default:
			return nil, fmt.Errorf("entry %d: unsupported pack object type %d", i, objType)
		}

		if offset >= len(payload) {
			return nil, fmt.Errorf("entry %d: %w: missing compressed payload", i, ErrTruncatedPack)
		}

		raw, consumed, err := inflatePackPayload(payload[offset:])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if uint64(len(raw)) != size {
			return nil, fmt.Errorf("entry %d: %w: size mismatch header=%d decoded=%d", i, ErrDeltaCorrupt, size, len(raw))
		}
		offset += consumed
		entry.Data = raw

		entries = append(entries, entry)
	}

	if offset != len(payload) {
		return nil, fmt.Errorf("%w: %d trailing undecoded bytes", ErrTruncatedPack, len(payload)-offset)
	}

	return &PackFile{
		Header:   *header,
		Entries:  entries,
		Checksum: Hash(hex.EncodeToString(trailer)),
	}, nil
}

// ReadPackFromReader reads a complete pack stream from r and delegates
// to ReadPack for decode and verification.
func ReadPackFromReader(r io.Reader) (*PackFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pack stream: %w", err)
	}
	return ReadPack(data)
}

// inflatePackPayload decompresses one zlib stream from the front of data
// and reports how many compressed bytes it consumed.
func inflatePackPayload(data []byte) ([]byte, int, error) {
	sub := bytes.NewReader(data)
	zr, err := zlib.NewReader(sub)
	if err != nil {
		return nil, 0, fmt.Errorf("zlib reader: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		_ = zr.Close()
		return nil, 0, fmt.Errorf("decompress: %w", err)
	}
	if err := zr.Close(); err != nil {
		return nil, 0, fmt.Errorf("close zlib stream: %w", err)
	}
	return raw, len(data) - sub.Len(), nil
}

func compressPackPayload(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
