package main

import (
	"encoding/json"
	"image/color"
	"path/filepath"
	"testing"

	"greenr/internal/featurestore"
	"greenr/internal/testsupport"
)

func TestFeaturesAddListGet(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := env.run(t, "features", "add", "img/a.jpg", "--label", "dandelion",
		"--attr", "width=224", "--attr", "mean_r=0.5", "--attr", "format=JPEG",
		"--metadata", `{"source":"cli"}`); err != nil {
		t.Fatalf("features add: %v", err)
	}
	if _, _, err := env.run(t, "features", "add", "img/b.jpg", "--label", "grass", "--attr", "width=100"); err != nil {
		t.Fatalf("features add: %v", err)
	}

	out, _, err := env.run(t, "--json", "features", "list", "--label", "dandelion")
	if err != nil {
		t.Fatalf("features list: %v", err)
	}
	var records []featurestore.Record
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decode list: %v\n%s", err, out)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 dandelion record, got %d", len(records))
	}
	rec := records[0]
	if rec.Key != featurestore.Key("img/a.jpg") {
		t.Fatalf("unexpected key %q", rec.Key)
	}
	if rec.Attributes["format"] != "JPEG" {
		t.Fatalf("expected string attribute, got %#v", rec.Attributes["format"])
	}
	if string(rec.Metadata) != `{"source":"cli"}` {
		t.Fatalf("unexpected metadata %s", rec.Metadata)
	}

	out, _, err = env.run(t, "features", "get", "img/a.jpg")
	if err != nil {
		t.Fatalf("features get: %v", err)
	}
	requireContains(t, out, "width")
	requireContains(t, out, "224")
	requireContains(t, out, featurestore.Key("img/a.jpg"))

	if _, _, err := env.run(t, "features", "get", "img/missing.jpg"); err == nil {
		t.Fatal("expected error for unknown path")
	}
}

func TestFeaturesAddRejectsInvalidInput(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := env.run(t, "features", "add", "img/a.jpg", "--attr", "width"); err == nil {
		t.Fatal("expected error for attribute without value")
	}
	if _, _, err := env.run(t, "features", "add", "img/a.jpg", "--attr", "label=x"); err == nil {
		t.Fatal("expected error for reserved attribute")
	}
	if _, _, err := env.run(t, "features", "add", "img/a.jpg", "--metadata", "{nope"); err == nil {
		t.Fatal("expected error for invalid metadata")
	}
}

func TestFeaturesStatsTitleCasesLabels(t *testing.T) {
	env := setupCLITestEnv(t)
	for _, args := range [][]string{
		{"img/a.jpg", "--label", "dandelion"},
		{"img/b.jpg", "--label", "dandelion"},
		{"img/c.jpg", "--label", "grass"},
	} {
		if _, _, err := env.run(t, append([]string{"features", "add", "--attr", "width=1"}, args...)...); err != nil {
			t.Fatalf("features add: %v", err)
		}
	}

	out, _, err := env.run(t, "features", "stats")
	if err != nil {
		t.Fatalf("features stats: %v", err)
	}
	requireContains(t, out, "Total features: 3")
	requireContains(t, out, "Dandelion")
	requireContains(t, out, "Grass")

	out, _, err = env.run(t, "--json", "features", "stats")
	if err != nil {
		t.Fatalf("features stats --json: %v", err)
	}
	var stats featurestore.Statistics
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.CountsByLabel["dandelion"] != 2 || stats.CountsByLabel["grass"] != 1 {
		t.Fatalf("unexpected counts %v", stats.CountsByLabel)
	}
}

func TestFeaturesExtractSave(t *testing.T) {
	env := setupCLITestEnv(t)
	good := filepath.Join(env.baseDir, "img", "green.png")
	testsupport.WriteImage(t, good, 8, 4, color.RGBA{R: 10, G: 200, B: 30, A: 255})
	bad := filepath.Join(env.baseDir, "img", "broken.jpg")
	testsupport.WriteFile(t, bad, 32)

	if _, _, err := env.run(t, "features", "extract", "--save", good); err == nil {
		t.Fatal("expected --save without --label to fail")
	}

	out, _, err := env.run(t, "features", "extract", "--save", "--label", "grass", good, bad)
	if err != nil {
		t.Fatalf("features extract: %v", err)
	}
	requireContains(t, out, "no features")
	requireContains(t, out, "stored")

	store := testsupport.MustOpenFeatureStore(t, env.cfg)
	rec, ok := store.Get(good)
	if !ok {
		t.Fatal("expected extracted record to be stored")
	}
	if rec.Attributes["width"] != int64(8) || rec.Attributes["height"] != int64(4) {
		t.Fatalf("unexpected dimensions %v", rec.Attributes)
	}
	if _, ok := store.Get(bad); ok {
		t.Fatal("unreadable image should not be stored from the CLI")
	}
}

func TestFeaturesClearRequiresConfirmation(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := env.run(t, "features", "add", "img/a.jpg", "--attr", "width=1"); err != nil {
		t.Fatalf("features add: %v", err)
	}

	if _, _, err := env.run(t, "features", "clear"); err == nil {
		t.Fatal("expected clear without --yes to fail")
	}
	out, _, err := env.run(t, "features", "clear", "--yes")
	if err != nil {
		t.Fatalf("features clear: %v", err)
	}
	requireContains(t, out, "Removed 1 feature records")

	out, _, err = env.run(t, "features", "list")
	if err != nil {
		t.Fatalf("features list: %v", err)
	}
	requireContains(t, out, "No feature records")
}

func TestFeaturesInfo(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithBackend("sqlite", "none"))

	out, _, err := env.run(t, "--json", "features", "info")
	if err != nil {
		t.Fatalf("features info: %v", err)
	}
	var info struct {
		Backend    string          `json:"backend"`
		Records    int             `json:"records"`
		Descriptor json.RawMessage `json:"descriptor"`
	}
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Backend != "sqlite" || info.Records != 0 {
		t.Fatalf("unexpected info %+v", info)
	}
	if len(info.Descriptor) != 0 {
		t.Fatalf("expected no descriptor before the first save, got %s", info.Descriptor)
	}

	if _, _, err := env.run(t, "features", "add", "img/a.jpg", "--attr", "width=1"); err != nil {
		t.Fatalf("features add: %v", err)
	}
	out, _, err = env.run(t, "features", "info")
	if err != nil {
		t.Fatalf("features info: %v", err)
	}
	requireContains(t, out, "sqlite")
	requireContains(t, out, "width")
}
