package remote

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/grit-scm/grit/pkg/object"
	"github.com/grit-scm/grit/pkg/pktline"
)

func advertisementBytes(t *testing.T, lines []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := pktline.NewWriter(&buf)
	if err := w.WriteString("# service=git-upload-pack\n"); err != nil {
		t.Fatalf("write announcement: %v", err)
	}
	if err := w.WriteFlush(); err != nil {
		t.Fatalf("write flush: %v", err)
	}
	for _, line := range lines {
		if err := w.WriteString(line); err != nil {
			t.Fatalf("write ref line: %v", err)
		}
	}
	if err := w.WriteFlush(); err != nil {
		t.Fatalf("write trailing flush: %v", err)
	}
	return buf.Bytes()
}

func TestParseAdvertisement(t *testing.T) {
	head := object.HashObject(object.TypeBlob, []byte("head commit"))
	dev := object.HashObject(object.TypeBlob, []byte("dev commit"))

	data := advertisementBytes(t, []string{
		string(head) + " HEAD\x00side-band-64k symref=HEAD:refs/heads/main agent=srv/1.0\n",
		string(head) + " refs/heads/main\n",
		string(dev) + " refs/heads/dev\n",
	})

	adv, err := ParseAdvertisement(bytes.NewReader(data), UploadPackService)
	if err != nil {
		t.Fatalf("ParseAdvertisement: %v", err)
	}

	if len(adv.Refs) != 3 {
		t.Fatalf("len(Refs) = %d, want 3", len(adv.Refs))
	}
	if !adv.Capabilities.Has("side-band-64k") {
		t.Fatal("missing side-band-64k capability")
	}
	if got := adv.Symrefs["HEAD"]; got != "refs/heads/main" {
		t.Fatalf("HEAD symref = %q, want refs/heads/main", got)
	}
	if got := adv.DefaultBranch(); got != "main" {
		t.Fatalf("DefaultBranch = %q, want main", got)
	}

	branch, tip, err := adv.SelectBranchTip("")
	if err != nil {
		t.Fatalf("SelectBranchTip: %v", err)
	}
	if branch != "main" || tip != head {
		t.Fatalf("SelectBranchTip = (%s, %s), want (main, %s)", branch, tip, head)
	}

	branch, tip, err = adv.SelectBranchTip("dev")
	if err != nil {
		t.Fatalf("SelectBranchTip dev: %v", err)
	}
	if branch != "dev" || tip != dev {
		t.Fatalf("SelectBranchTip dev = (%s, %s)", branch, tip)
	}

	if _, _, err := adv.SelectBranchTip("missing"); err == nil {
		t.Fatal("SelectBranchTip of unknown branch: expected error")
	}
}

func TestParseAdvertisementDefaultBranchByDigest(t *testing.T) {
	head := object.HashObject(object.TypeBlob, []byte("tip"))

	// No symref declaration: the default branch is found by matching
	// the HEAD digest against the advertised heads.
	data := advertisementBytes(t, []string{
		string(head) + " HEAD\x00agent=srv/1.0\n",
		string(head) + " refs/heads/trunk\n",
	})
	adv, err := ParseAdvertisement(bytes.NewReader(data), UploadPackService)
	if err != nil {
		t.Fatalf("ParseAdvertisement: %v", err)
	}
	if got := adv.DefaultBranch(); got != "trunk" {
		t.Fatalf("DefaultBranch = %q, want trunk", got)
	}
}

func TestParseAdvertisementEmptyRepository(t *testing.T) {
	data := advertisementBytes(t, []string{
		strings.Repeat("0", 40) + " capabilities^{}\x00agent=srv/1.0\n",
	})
	adv, err := ParseAdvertisement(bytes.NewReader(data), UploadPackService)
	if err != nil {
		t.Fatalf("ParseAdvertisement: %v", err)
	}
	if len(adv.Refs) != 0 {
		t.Fatalf("len(Refs) = %d, want 0", len(adv.Refs))
	}
	if _, _, err := adv.SelectBranchTip(""); err == nil {
		t.Fatal("SelectBranchTip on empty repository: expected error")
	}
}

func TestParseAdvertisementProtocolViolations(t *testing.T) {
	head := object.HashObject(object.TypeBlob, []byte("x"))

	frame := func(write func(w *pktline.Writer)) []byte {
		var buf bytes.Buffer
		w := pktline.NewWriter(&buf)
		write(w)
		return buf.Bytes()
	}

	cases := map[string][]byte{
		"wrong service": frame(func(w *pktline.Writer) {
			_ = w.WriteString("# service=git-receive-pack\n")
		}),
		"missing announcement flush": frame(func(w *pktline.Writer) {
			_ = w.WriteString("# service=git-upload-pack\n")
			_ = w.WriteString(string(head) + " HEAD\x00caps\n")
		}),
		"first ref without capabilities": frame(func(w *pktline.Writer) {
			_ = w.WriteString("# service=git-upload-pack\n")
			_ = w.WriteFlush()
			_ = w.WriteString(string(head) + " refs/heads/main\n")
			_ = w.WriteFlush()
		}),
		"malformed ref digest": frame(func(w *pktline.Writer) {
			_ = w.WriteString("# service=git-upload-pack\n")
			_ = w.WriteFlush()
			_ = w.WriteString("nothex refs/heads/main\x00caps\n")
			_ = w.WriteFlush()
		}),
		"missing terminating flush": frame(func(w *pktline.Writer) {
			_ = w.WriteString("# service=git-upload-pack\n")
			_ = w.WriteFlush()
			_ = w.WriteString(string(head) + " HEAD\x00caps\n")
		}),
	}

	for name, data := range cases {
		_, err := ParseAdvertisement(bytes.NewReader(data), UploadPackService)
		if !errors.Is(err, ErrProtocol) {
			t.Fatalf("%s: err = %v, want ErrProtocol", name, err)
		}
	}
}

func TestCapabilitiesSymrefs(t *testing.T) {
	caps := ParseCapabilities("side-band-64k symref=HEAD:refs/heads/main symref=refs/remotes/x:refs/heads/y agent=a")
	symrefs := caps.Symrefs()
	if len(symrefs) != 2 {
		t.Fatalf("len(symrefs) = %d, want 2", len(symrefs))
	}
	if symrefs["HEAD"] != "refs/heads/main" {
		t.Fatalf("symrefs[HEAD] = %q", symrefs["HEAD"])
	}
}

func TestParseEndpoint(t *testing.T) {
	ep, err := ParseEndpoint("https://example.com/team/project.git/")
	if err != nil {
		t.Fatalf("ParseEndpoint: %v", err)
	}
	if ep.URL != "https://example.com/team/project.git" {
		t.Fatalf("URL = %q", ep.URL)
	}
	if got := ep.RepositoryName(); got != "project" {
		t.Fatalf("RepositoryName = %q, want project", got)
	}

	bad := []string{
		"ssh://example.com/x.git",
		"ftp://example.com/x",
		"http://",
		"not a url at all\x00",
	}
	for _, raw := range bad {
		if _, err := ParseEndpoint(raw); err == nil {
			t.Fatalf("ParseEndpoint(%q): expected error", raw)
		}
	}
}
