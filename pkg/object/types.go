package object

// Hash is a 40-character hex-encoded SHA-1 digest.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

const (
	// Tree mode constants matching Git's canonical mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
	TreeModeSymlink    = "120000"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object. Target is the digest of the
// blob (for files and symlinks) or subtree (for directories).
type TreeEntry struct {
	Mode   string
	Name   string
	Target Hash
}

// IsDir reports whether the entry points at a subtree.
func (e TreeEntry) IsDir() bool {
	return e.Mode == TreeModeDir
}

// TreeObj holds tree entries. Serialization sorts them canonically.
type TreeObj struct {
	Entries []TreeEntry
}

// Signature is an author or committer identity line.
type Signature struct {
	Name     string
	Email    string
	When     int64  // seconds since epoch
	Timezone string // e.g. "+0400"
}

// CommitObj represents a commit pointing to a tree with metadata.
// Parents order is significant (merge-parent order) and round-trips.
type CommitObj struct {
	TreeHash  Hash
	Parents   []Hash
	Author    Signature
	Committer Signature
	Message   string
}

// TagObj is an annotated tag pointing at another object.
type TagObj struct {
	TargetHash Hash
	TargetType ObjectType
	Name       string
	Tagger     Signature
	HasTagger  bool
	Message    string
}
