package repo

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/grit-scm/grit/pkg/object"
	"github.com/grit-scm/grit/pkg/pktline"
)

// startCloneServer serves a single-branch repository whose tip is a
// commit -> tree -> blob chain, over the smart-HTTP fetch protocol.
func startCloneServer(t *testing.T) (*httptest.Server, object.Hash) {
	t.Helper()

	blobData := []byte("cloned file contents\n")
	blobHash := object.HashObject(object.TypeBlob, blobData)
	treeData, err := object.MarshalTree(&object.TreeObj{Entries: []object.TreeEntry{
		{Mode: object.TreeModeFile, Name: "file.txt", Target: blobHash},
	}})
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	treeHash := object.HashObject(object.TypeTree, treeData)
	sig := object.Signature{Name: "Srv", Email: "srv@example.com", When: 1700000000, Timezone: "+0000"}
	commitData := object.MarshalCommit(&object.CommitObj{
		TreeHash:  treeHash,
		Author:    sig,
		Committer: sig,
		Message:   "served commit\n",
	})
	commitHash := object.HashObject(object.TypeCommit, commitData)

	var pack bytes.Buffer
	pw, err := object.NewPackWriter(&pack, 3)
	if err != nil {
		t.Fatalf("NewPackWriter: %v", err)
	}
	if err := pw.WriteEntry(object.PackCommit, commitData); err != nil {
		t.Fatalf("WriteEntry commit: %v", err)
	}
	if err := pw.WriteEntry(object.PackTree, treeData); err != nil {
		t.Fatalf("WriteEntry tree: %v", err)
	}
	if err := pw.WriteEntry(object.PackBlob, blobData); err != nil {
		t.Fatalf("WriteEntry blob: %v", err)
	}
	if _, err := pw.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/info/refs", func(w http.ResponseWriter, r *http.Request) {
		pl := pktline.NewWriter(w)
		_ = pl.WriteString("# service=git-upload-pack\n")
		_ = pl.WriteFlush()
		_ = pl.WriteString(fmt.Sprintf("%s HEAD\x00symref=HEAD:refs/heads/main agent=test/1.0\n", commitHash))
		_ = pl.WriteString(fmt.Sprintf("%s refs/heads/main\n", commitHash))
		_ = pl.WriteFlush()
	})
	mux.HandleFunc("/git-upload-pack", func(w http.ResponseWriter, r *http.Request) {
		pl := pktline.NewWriter(w)
		_ = pl.WriteString("NAK\n")
		_, _ = w.Write(pack.Bytes())
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, commitHash
}

func TestCloneEndToEnd(t *testing.T) {
	srv, tip := startCloneServer(t)

	dir := filepath.Join(t.TempDir(), "cloned")
	r, result, err := Clone(context.Background(), srv.URL, dir, CloneOptions{})
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	if result.Branch != "main" || result.Tip != tip {
		t.Fatalf("result = %+v", result)
	}
	if result.ObjectsWritten != 3 {
		t.Fatalf("ObjectsWritten = %d, want 3", result.ObjectsWritten)
	}

	// HEAD points at the cloned branch, both local and tracking refs
	// record the fetched tip.
	head, err := r.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != "refs/heads/main" {
		t.Fatalf("Head = %q", head)
	}
	for _, name := range []string{"refs/heads/main", "refs/remotes/origin/main"} {
		got, err := r.ResolveRef(name)
		if err != nil {
			t.Fatalf("ResolveRef(%s): %v", name, err)
		}
		if got != tip {
			t.Fatalf("ResolveRef(%s) = %s, want %s", name, got, tip)
		}
	}

	// The remote is recorded for later fetches.
	url, err := r.RemoteURL("origin")
	if err != nil {
		t.Fatalf("RemoteURL: %v", err)
	}
	if url != srv.URL {
		t.Fatalf("RemoteURL = %q, want %q", url, srv.URL)
	}

	// The full object closure landed in the store.
	commit, err := r.Store.ReadCommit(tip)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	tree, err := r.Store.ReadTree(commit.TreeHash)
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	blob, err := r.Store.ReadBlob(tree.Entries[0].Target)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if string(blob.Data) != "cloned file contents\n" {
		t.Fatalf("blob = %q", blob.Data)
	}
}

func TestCloneUnknownBranch(t *testing.T) {
	srv, _ := startCloneServer(t)

	dir := filepath.Join(t.TempDir(), "cloned")
	if _, _, err := Clone(context.Background(), srv.URL, dir, CloneOptions{Branch: "nope"}); err == nil {
		t.Fatal("Clone of unknown branch: expected error")
	}
}
