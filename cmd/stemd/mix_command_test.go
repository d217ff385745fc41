package main

import (
	"context"
	"path/filepath"
	"testing"

	"stemd/internal/catalog"
	"stemd/internal/stems"
	"stemd/internal/testsupport"
)

func attachStem(t *testing.T, env *cliTestEnv, store *catalog.Store, trackID int64, kind string) {
	t.Helper()
	source := filepath.Join(t.TempDir(), kind+".wav")
	testsupport.WriteFile(t, source, 1024)
	library := stems.New(env.cfg, store)
	if _, err := library.Attach(context.Background(), trackID, kind, source); err != nil {
		t.Fatalf("attach stem: %v", err)
	}
}

func TestMixRejectsUnknownTrack(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.MustOpenCatalog(t, env.cfg)

	_, _, err := runCLI(t, []string{"mix", "42"}, env.configPath)
	if err == nil {
		t.Fatal("expected error for unknown track")
	}
	requireContains(t, err.Error(), "track 42 not found")
}

func TestMixRequiresAttachedStems(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenCatalog(t, env.cfg)

	testsupport.NewTrack(t, store, "Unmixed")
	_, _, err := runCLI(t, []string{"mix", "1"}, env.configPath)
	if err == nil {
		t.Fatal("expected error when no stems are attached")
	}
	requireContains(t, err.Error(), "no stems to mix")
}

func TestMixRejectsUnrecognizedKind(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenCatalog(t, env.cfg)

	track := testsupport.NewTrack(t, store, "Mixable")
	attachStem(t, env, store, track.ID, "vocals")

	_, _, err := runCLI(t, []string{"mix", "1", "--stems", "guitar"}, env.configPath)
	if err == nil {
		t.Fatal("expected error for unrecognized stem kind")
	}
	requireContains(t, err.Error(), "unrecognized stem kind")
}
