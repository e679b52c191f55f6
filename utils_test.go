package geobbox

import (
	"path/filepath"
	"testing"
)

func TestBandsOutPath(t *testing.T) {
	got, err := BandsOutPath(filepath.Join("data", "scene.tif"), 3, "png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := filepath.Join("data", "scene_3b.png"); got != want {
		t.Errorf("expecting %q, actual %q", want, got)
	}
	if got, _ := BandsOutPath("scene.tif", 1, "tif"); got != "scene_1b.tif" {
		t.Errorf("expecting scene_1b.tif, actual %q", got)
	}
	if _, err := BandsOutPath("scene", 3, "png"); err == nil {
		t.Error("expecting an error for a path without extension")
	}
}
