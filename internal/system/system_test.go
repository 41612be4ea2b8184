package system

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.JPG", "scene.tif", "notes.txt", "a.png.geo.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	os.Mkdir(filepath.Join(dir, "sub.png"), 0755)

	paths, err := ListImages(dir)
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}

	want := []string{"a.JPG", "b.png", "scene.tif"}
	if len(paths) != len(want) {
		t.Fatalf("Expected %d images, got %d: %v", len(want), len(paths), paths)
	}
	for i, w := range want {
		if filepath.Base(paths[i]) != w {
			t.Errorf("Image %d: expected %s, got %s", i, w, paths[i])
		}
	}
}

func TestFindLatestImage(t *testing.T) {
	dir := t.TempDir()
	files := []string{"old.png", "newest.jpg", "mid.png"}
	offsets := []time.Duration{-3 * time.Hour, time.Hour, -time.Hour}

	for i, name := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		mt := time.Now().Add(offsets[i])
		os.Chtimes(p, mt, mt)
	}

	latest, err := FindLatestImage(dir)
	if err != nil {
		t.Fatalf("FindLatestImage failed: %v", err)
	}
	if filepath.Base(latest) != "newest.jpg" {
		t.Errorf("Expected newest.jpg, got %s", latest)
	}

	// A file argument searches its directory.
	latest, err = FindLatestImage(filepath.Join(dir, "old.png"))
	if err != nil || filepath.Base(latest) != "newest.jpg" {
		t.Errorf("Expected newest.jpg from file argument, got %s (%v)", latest, err)
	}

	if _, err := FindLatestImage(t.TempDir()); err == nil {
		t.Error("Expected error for empty directory")
	}
}

func TestGrayPoolReturnsMatchingRect(t *testing.T) {
	rect := image.Rect(0, 0, 13, 7)
	g := GetGray(rect)
	if g.Rect != rect {
		t.Fatalf("Expected rect %v, got %v", rect, g.Rect)
	}
	g.Pix[5] = 255
	PutGray(g)
	PutGray(nil)

	again := GetGray(rect)
	if again.Rect != rect {
		t.Errorf("Expected rect %v after reuse, got %v", rect, again.Rect)
	}
	for i, v := range again.Pix {
		if v != 0 {
			t.Fatalf("Expected zeroed buffer, pixel %d is %d", i, v)
		}
	}
}

func TestDefaultWorkersPositive(t *testing.T) {
	if n := DefaultWorkers(); n < 1 {
		t.Errorf("Expected at least one worker, got %d", n)
	}
	if s := TakeSnapshot(); s.LogicalCPUs < 1 {
		t.Errorf("Expected at least one logical CPU, got %d", s.LogicalCPUs)
	}
}
