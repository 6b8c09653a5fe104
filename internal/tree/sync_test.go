package tree

import (
	"context"
	"sync"
	"testing"

	"github.com/ApenasGabs/queroAulas/internal/classify"
	"github.com/ApenasGabs/queroAulas/internal/drive"
	"github.com/ApenasGabs/queroAulas/internal/errs"
)

func TestResolveFolderID(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"https://drive.google.com/drive/folders/1v2dvoHpj_Mik6Fh0EXyGMuBwskHOv5w1", "1v2dvoHpj_Mik6Fh0EXyGMuBwskHOv5w1", true},
		{"https://drive.google.com/drive/folders/1v2dvoHpj_Mik6Fh0EXyGMuBwskHOv5w1?usp=sharing", "1v2dvoHpj_Mik6Fh0EXyGMuBwskHOv5w1", true},
		{"1v2dvoHpj_Mik6Fh0EXyGMuBwskHOv5w1", "1v2dvoHpj_Mik6Fh0EXyGMuBwskHOv5w1", true},
		{"abc-DEF_1234", "abc-DEF_1234", true},
		{"short", "", false},          // bare ID too short
		{"not a folder id!", "", false},
		{"https://example.com/files/12345678901234567890", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ResolveFolderID(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ResolveFolderID(%q) = (%q, %v), want (%q, %v)",
				tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestResolveFolderID_Idempotent(t *testing.T) {
	inputs := []string{
		"https://drive.google.com/drive/folders/1v2dvoHpj_Mik6Fh0EXyGMuBwskHOv5w1",
		"abc-DEF_1234",
	}
	for _, input := range inputs {
		id, ok := ResolveFolderID(input)
		if !ok {
			t.Fatalf("ResolveFolderID(%q) not ok", input)
		}
		again, ok := ResolveFolderID(id)
		if !ok || again != id {
			t.Errorf("ResolveFolderID(%q) = (%q, %v), want (%q, true)", id, again, ok, id)
		}
	}
}

// fakeLister serves a canned folder hierarchy.
type fakeLister struct {
	mu       sync.Mutex
	children map[string][]drive.Item
	errs     map[string]error
	calls    []string
}

func (f *fakeLister) ListChildren(_ context.Context, folderID string) ([]drive.Item, error) {
	f.mu.Lock()
	f.calls = append(f.calls, folderID)
	f.mu.Unlock()

	if err := f.errs[folderID]; err != nil {
		return nil, err
	}
	return f.children[folderID], nil
}

func folderItem(id, name string) drive.Item {
	return drive.Item{ID: id, Name: name, MimeType: classify.FolderMimeType}
}

func videoItem(id, name, size string) drive.Item {
	return drive.Item{ID: id, Name: name, MimeType: "video/mp4", Size: size}
}

func TestFetchTree_Fixture(t *testing.T) {
	lister := &fakeLister{
		children: map[string][]drive.Item{
			"root-folder-id": {
				folderItem("f1", "F1"),
				folderItem("f2", "F2"),
			},
			"f1": {},
			"f2": {videoItem("v1", "V1.mp4", "1000")},
		},
	}

	syncer := NewSynchronizer(lister)
	root, err := syncer.FetchTree(context.Background(), "root-folder-id")
	if err != nil {
		t.Fatalf("FetchTree: %v", err)
	}

	if len(root.Children) != 2 {
		t.Fatalf("root has %d children, want 2", len(root.Children))
	}

	f1 := FindByID(root, "f1")
	if f1 == nil || len(f1.Children) != 0 {
		t.Errorf("F1 should be an empty folder, got %+v", f1)
	}

	f2 := FindByID(root, "f2")
	if f2 == nil || len(f2.Children) != 1 {
		t.Fatalf("F2 should contain one child, got %+v", f2)
	}

	v1 := f2.Children[0]
	if !v1.IsVideo() {
		t.Errorf("V1 classified as %v, want video", v1.Class)
	}
	if v1.Size != 1000 {
		t.Errorf("V1 size = %d, want 1000", v1.Size)
	}
}

func TestFetchTree_NaturalSiblingOrder(t *testing.T) {
	lister := &fakeLister{
		children: map[string][]drive.Item{
			"root-folder-id": {
				videoItem("b10", "b10.mp4", ""),
				videoItem("b2", "b2.mp4", ""),
				videoItem("a1", "a1.mp4", ""),
			},
		},
	}

	root, err := NewSynchronizer(lister).FetchTree(context.Background(), "root-folder-id")
	if err != nil {
		t.Fatalf("FetchTree: %v", err)
	}

	want := []string{"a1.mp4", "b2.mp4", "b10.mp4"}
	for i, child := range root.Children {
		if child.Name != want[i] {
			t.Errorf("child[%d] = %q, want %q", i, child.Name, want[i])
		}
	}
}

func TestFetchTree_ErrorAbortsWholeFetch(t *testing.T) {
	lister := &fakeLister{
		children: map[string][]drive.Item{
			"root-folder-id": {
				folderItem("ok-folder", "A"),
				folderItem("bad-folder", "B"),
			},
			"ok-folder": {videoItem("v1", "v1.mp4", "")},
		},
		errs: map[string]error{
			"bad-folder": errs.New(errs.KindNotFound, "drive.ListChildren", "folder missing"),
		},
	}

	root, err := NewSynchronizer(lister).FetchTree(context.Background(), "root-folder-id")
	if err == nil {
		t.Fatal("FetchTree should fail when a subtree fails")
	}
	if root != nil {
		t.Error("no partial tree should be returned on failure")
	}
	if errs.KindOf(err) != errs.KindNotFound {
		t.Errorf("error kind = %v, want not_found", errs.KindOf(err))
	}
}

func TestFetchTree_CycleGuard(t *testing.T) {
	// a -> b -> a
	lister := &fakeLister{
		children: map[string][]drive.Item{
			"folder-aaaa": {folderItem("folder-bbbb", "B")},
			"folder-bbbb": {folderItem("folder-aaaa", "A")},
		},
	}

	_, err := NewSynchronizer(lister).FetchTree(context.Background(), "folder-aaaa")
	if err == nil {
		t.Fatal("FetchTree should detect the cycle")
	}
}

func TestFetchTree_DepthGuard(t *testing.T) {
	lister := &fakeLister{
		children: map[string][]drive.Item{
			"d0": {folderItem("d1", "1")},
			"d1": {folderItem("d2", "2")},
			"d2": {folderItem("d3", "3")},
			"d3": {},
		},
	}

	if _, err := NewSynchronizer(lister, WithMaxDepth(2)).FetchTree(context.Background(), "d0"); err == nil {
		t.Fatal("FetchTree should fail past the depth limit")
	}
	if _, err := NewSynchronizer(lister, WithMaxDepth(5)).FetchTree(context.Background(), "d0"); err != nil {
		t.Fatalf("FetchTree within the depth limit: %v", err)
	}
}

func TestFetchTree_EmptyID(t *testing.T) {
	_, err := NewSynchronizer(&fakeLister{}).FetchTree(context.Background(), "")
	if errs.KindOf(err) != errs.KindInvalidInput {
		t.Errorf("error kind = %v, want invalid_input", errs.KindOf(err))
	}
}

func TestCountByClass(t *testing.T) {
	lister := &fakeLister{
		children: map[string][]drive.Item{
			"root-folder-id": {
				folderItem("f1", "F1"),
				videoItem("v1", "v1.mp4", ""),
				{ID: "o1", Name: "notes.pdf", MimeType: "application/pdf"},
			},
			"f1": {videoItem("v2", "v2.mkv", "")},
		},
	}

	root, err := NewSynchronizer(lister).FetchTree(context.Background(), "root-folder-id")
	if err != nil {
		t.Fatalf("FetchTree: %v", err)
	}

	counts := CountByClass(root)
	if counts.Folders != 1 || counts.Videos != 2 || counts.Others != 1 {
		t.Errorf("CountByClass = %+v, want 1 folder, 2 videos, 1 other", counts)
	}

	if vids := Videos(root); len(vids) != 2 {
		t.Errorf("Videos returned %d nodes, want 2", len(vids))
	}

	if n := CountNodes(root); n != 5 {
		t.Errorf("CountNodes = %d, want 5", n)
	}
}

func TestFindByID_Missing(t *testing.T) {
	root := &Node{ID: "root", Class: classify.Folder}
	if FindByID(root, "nope") != nil {
		t.Error("FindByID should return nil for unknown id")
	}
	if FindByID(nil, "x") != nil {
		t.Error("FindByID(nil) should return nil")
	}
}
