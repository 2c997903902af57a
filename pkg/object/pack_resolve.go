package object

import (
	"errors"
	"fmt"
	"os"
)

// BaseLookup supplies delta bases that live outside the pack being
// resolved (typically Store.Read). A nil lookup restricts resolution to
// in-pack bases.
type BaseLookup func(Hash) (ObjectType, []byte, error)

// ResolvePackEntries resolves every delta entry against in-pack bases
// only. See ResolvePackEntriesWithBase.
func ResolvePackEntries(entries []PackEntry) ([]PackEntry, error) {
	return ResolvePackEntriesWithBase(entries, nil)
}

// ResolvePackEntriesWithBase materializes all delta entries as full
// objects. Resolution runs as repeated passes over a worklist of
// unresolved slots rather than recursing down delta chains: each pass
// resolves every entry whose base is available, and results are
// memoized by slot so shared bases are resolved once. OFS_DELTA bases
// must be earlier in-pack entries; REF_DELTA bases may be in-pack
// objects or supplied by lookup. When a full pass makes no progress the
// remaining entries are undecidable: a REF_DELTA whose base digest is
// known nowhere reports ErrUnresolvedBase, anything else (including
// delta dependency cycles) reports ErrDeltaCorrupt.
func ResolvePackEntriesWithBase(entries []PackEntry, lookup BaseLookup) ([]PackEntry, error) {
	out := make([]PackEntry, len(entries))
	copy(out, entries)

	byOffset := make(map[uint64]int, len(out))
	for i := range out {
		byOffset[out[i].Offset] = i
	}

	// Digests of already-resolved in-pack entries, for REF_DELTA bases.
	byDigest := make(map[Hash]int, len(out))
	resolved := make([]bool, len(out))

	markResolved := func(i int) {
		resolved[i] = true
		if objType, ok := out[i].Type.ObjectType(); ok {
			byDigest[HashObject(objType, out[i].Data)] = i
		}
	}

	pending := 0
	for i := range out {
		if out[i].OriginalType.IsDelta() {
			pending++
			continue
		}
		markResolved(i)
	}

	for pending > 0 {
		progressed := false
		for i := range out {
			if resolved[i] {
				continue
			}
			baseType, baseData, ok, err := findDeltaBase(out, byOffset, byDigest, resolved, i, lookup)
			if err != nil {
				return nil, fmt.Errorf("entry at offset %d: %w", out[i].Offset, err)
			}
			if !ok {
				continue
			}

			target, err := applyDelta(baseData, out[i].Data)
			if err != nil {
				return nil, fmt.Errorf("entry at offset %d: %w", out[i].Offset, err)
			}
			packType, ok := packTypeForObjectType(baseType)
			if !ok {
				return nil, fmt.Errorf("entry at offset %d: %w: base has unsupported type %q",
					out[i].Offset, ErrDeltaCorrupt, baseType)
			}
			out[i].Type = packType
			out[i].Data = target
			out[i].Size = uint64(len(target))
			markResolved(i)
			pending--
			progressed = true
		}
		if !progressed {
			return nil, classifyStuckEntries(out, resolved)
		}
	}

	return out, nil
}

// findDeltaBase locates the base buffer for unresolved delta entry i.
// ok=false means the base is not available yet (in-pack base still
// unresolved, or external digest unknown so far).
func findDeltaBase(
	entries []PackEntry,
	byOffset map[uint64]int,
	byDigest map[Hash]int,
	resolved []bool,
	i int,
	lookup BaseLookup,
) (ObjectType, []byte, bool, error) {
	e := entries[i]
	switch e.OriginalType {
	case PackOfsDelta:
		if e.BaseDistance == 0 || e.BaseDistance > e.Offset {
			return "", nil, false, fmt.Errorf("%w: ofs-delta distance %d out of range", ErrDeltaCorrupt, e.BaseDistance)
		}
		baseIdx, ok := byOffset[e.Offset-e.BaseDistance]
		if !ok {
			return "", nil, false, fmt.Errorf("%w: ofs-delta base offset %d does not address an entry",
				ErrDeltaCorrupt, e.Offset-e.BaseDistance)
		}
		if baseIdx >= i {
			return "", nil, false, fmt.Errorf("%w: ofs-delta base must precede its delta", ErrDeltaCorrupt)
		}
		if !resolved[baseIdx] {
			return "", nil, false, nil
		}
		objType, ok := entries[baseIdx].Type.ObjectType()
		if !ok {
			return "", nil, false, fmt.Errorf("%w: ofs-delta base is not a base object", ErrDeltaCorrupt)
		}
		return objType, entries[baseIdx].Data, true, nil

	case PackRefDelta:
		if baseIdx, ok := byDigest[e.BaseRef]; ok {
			objType, _ := entries[baseIdx].Type.ObjectType()
			return objType, entries[baseIdx].Data, true, nil
		}
		if lookup != nil {
			objType, data, err := lookup(e.BaseRef)
			if err == nil {
				return objType, data, true, nil
			}
			if !errors.Is(err, ErrNotFound) && !errors.Is(err, os.ErrNotExist) {
				return "", nil, false, err
			}
		}
		return "", nil, false, nil

	default:
		return "", nil, false, fmt.Errorf("%w: entry is not a delta", ErrDeltaCorrupt)
	}
}

func classifyStuckEntries(entries []PackEntry, resolved []bool) error {
	for i := range entries {
		if resolved[i] {
			continue
		}
		if entries[i].OriginalType == PackRefDelta {
			return fmt.Errorf("%w: %s", ErrUnresolvedBase, entries[i].BaseRef)
		}
	}
	for i := range entries {
		if !resolved[i] {
			return fmt.Errorf("%w: delta at offset %d is part of an unresolvable chain",
				ErrDeltaCorrupt, entries[i].Offset)
		}
	}
	return fmt.Errorf("%w: resolution stalled", ErrDeltaCorrupt)
}

// ReadPackResolved parses a pack and materializes every delta entry
// using in-pack bases only.
func ReadPackResolved(data []byte) (*PackFile, error) {
	pf, err := ReadPack(data)
	if err != nil {
		return nil, err
	}
	resolvedEntries, err := ResolvePackEntries(pf.Entries)
	if err != nil {
		return nil, err
	}
	pf.Entries = resolvedEntries
	return pf, nil
}

// IndexPack decodes a pack stream and writes every materialized object
// into the store. REF_DELTA bases absent from the pack resolve against
// objects already in the store. It returns the number of objects newly
// written; on error nothing beyond already-written valid objects has
// been committed, so a retried transfer can reuse them.
func IndexPack(store *Store, data []byte) (int, error) {
	pf, err := ReadPack(data)
	if err != nil {
		return 0, err
	}
	resolvedEntries, err := ResolvePackEntriesWithBase(pf.Entries, store.Read)
	if err != nil {
		return 0, err
	}

	written := 0
	for i := range resolvedEntries {
		objType, ok := resolvedEntries[i].Type.ObjectType()
		if !ok {
			return written, fmt.Errorf("entry at offset %d: unsupported resolved type %d",
				resolvedEntries[i].Offset, resolvedEntries[i].Type)
		}
		h := HashObject(objType, resolvedEntries[i].Data)
		existed := store.Has(h)
		if _, err := store.Write(objType, resolvedEntries[i].Data); err != nil {
			return written, err
		}
		if !existed {
			written++
		}
	}
	return written, nil
}
