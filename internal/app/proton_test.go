package app

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/zelotez/winemgr/internal/catalog"
	"github.com/zelotez/winemgr/internal/download"
	"github.com/zelotez/winemgr/internal/installs"
	"github.com/zelotez/winemgr/internal/manager"
	"github.com/zelotez/winemgr/internal/output"
)

const testTag = "GE-Proton9-1"

type stubCatalog struct {
	releases []catalog.Release
	err      error
}

func (s stubCatalog) FetchCatalog(ctx context.Context) ([]catalog.Release, error) {
	return s.releases, s.err
}

type stubDownloader struct {
	data []byte
}

func (s stubDownloader) Open(ctx context.Context, url string) (*download.Artifact, error) {
	return &download.Artifact{Body: io.NopCloser(bytes.NewReader(s.data)), Size: int64(len(s.data))}, nil
}

func runtimeTarball(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	body := []byte("#!/usr/bin/env python3\n")
	if err := tw.WriteHeader(&tar.Header{Name: testTag + "/", Typeflag: tar.TypeDir, Mode: 0755}); err != nil {
		t.Fatal(err)
	}
	if err := tw.WriteHeader(&tar.Header{Name: testTag + "/proton", Typeflag: tar.TypeReg, Mode: 0755, Size: int64(len(body))}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(body); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	gzw.Close()
	return buf.Bytes()
}

func remoteCatalog() stubCatalog {
	return stubCatalog{releases: []catalog.Release{
		{Tag: "GE-Proton9-2", ArchiveURL: "https://example.invalid/9-2.tar.gz", ArchiveName: "9-2.tar.gz"},
		{Tag: testTag, ArchiveURL: "https://example.invalid/9-1.tar.gz", ArchiveName: "9-1.tar.gz"},
	}}
}

func TestProtonCommand_Flags(t *testing.T) {
	if f := protonListCmd.Flags().Lookup("remote"); f == nil || f.DefValue != "false" {
		t.Error("expected --remote flag defaulting to false")
	}
	if f := protonListCmd.Flags().Lookup("output"); f == nil || f.DefValue != "table" {
		t.Error("expected --output flag defaulting to table")
	}
	if f := protonDefaultCmd.Flags().Lookup("clear"); f == nil {
		t.Error("expected --clear flag on proton default")
	}
}

func TestProtonList_Installed(t *testing.T) {
	home := testEnv(t)
	installRuntime(t, home, testTag)
	installRuntime(t, home, "GE-Proton8-1")
	writeConfig(t, readConfig(t).WithDefaultProton(testTag))
	setFlag(t, &protonListRemote, false)
	setFlag(t, &protonListOutput, "table")

	cmd, buf := newTestCmd()
	if err := runProtonList(cmd, nil); err != nil {
		t.Fatalf("runProtonList() failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "GE-Proton8-1") {
		t.Errorf("output missing GE-Proton8-1:\n%s", out)
	}
	if !strings.Contains(out, "* "+testTag) {
		t.Errorf("default runtime not starred:\n%s", out)
	}
}

func TestProtonList_JSON(t *testing.T) {
	home := testEnv(t)
	installRuntime(t, home, testTag)
	setFlag(t, &protonListRemote, false)
	setFlag(t, &protonListOutput, "json")

	cmd, buf := newTestCmd()
	if err := runProtonList(cmd, nil); err != nil {
		t.Fatalf("runProtonList() failed: %v", err)
	}

	var versions []installs.Version
	if err := json.Unmarshal(buf.Bytes(), &versions); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if len(versions) != 1 || versions[0].Tag != testTag {
		t.Errorf("versions = %+v, want one %s", versions, testTag)
	}
}

func TestProtonList_BadFormat(t *testing.T) {
	testEnv(t)
	setFlag(t, &protonListOutput, "xml")
	cmd, _ := newTestCmd()
	if err := runProtonList(cmd, nil); err == nil {
		t.Error("expected error for unknown output format")
	}
}

func TestListRemote(t *testing.T) {
	root := t.TempDir()
	store := installs.New(root)
	if err := store.Install(testTag, bytes.NewReader(runtimeTarball(t)), -1); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	m := manager.New(remoteCatalog(), nil, store)
	if err := listRemote(&buf, m, output.FormatTable); err != nil {
		t.Fatalf("listRemote() failed: %v", err)
	}

	lines := strings.Split(buf.String(), "\n")
	var sawInstalled, sawAvailable bool
	for _, line := range lines {
		if strings.HasPrefix(line, testTag) && strings.Contains(line, "installed") {
			sawInstalled = true
		}
		if strings.HasPrefix(line, "GE-Proton9-2") && strings.Contains(line, "available") {
			sawAvailable = true
		}
	}
	if !sawInstalled || !sawAvailable {
		t.Errorf("unexpected table:\n%s", buf.String())
	}
}

func TestListRemote_FetchError(t *testing.T) {
	var buf bytes.Buffer
	m := manager.New(stubCatalog{err: catalog.ErrNetwork}, nil, installs.New(t.TempDir()))
	err := listRemote(&buf, m, output.FormatTable)
	if !errors.Is(err, catalog.ErrNetwork) {
		t.Errorf("listRemote() error = %v, want ErrNetwork", err)
	}
}

func TestFollowOperation_Install(t *testing.T) {
	testEnv(t)
	store := installs.New(t.TempDir())
	m := manager.New(remoteCatalog(), stubDownloader{data: runtimeTarball(t)}, store,
		manager.WithTempDir(t.TempDir()), manager.WithChunkSize(64))
	m.Install(testTag)
	go m.Close()

	var buf bytes.Buffer
	if err := followOperation(&buf, m.Events()); err != nil {
		t.Fatalf("followOperation() failed: %v\n%s", err, buf.String())
	}

	out := buf.String()
	for _, want := range []string{"Resolving " + testTag, "100%", testTag + ": Installed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if !store.Installed(testTag) {
		t.Error("runtime not installed")
	}

	db, err := openHistory()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	op, err := db.LastOperation(testTag)
	if err != nil || op == nil {
		t.Fatalf("LastOperation() = %v, %v", op, err)
	}
	if !op.Success || op.Kind != "install" || op.Message != manager.MsgInstalled {
		t.Errorf("recorded operation = %+v", op)
	}
}

func TestFollowOperation_Failure(t *testing.T) {
	testEnv(t)
	m := manager.New(remoteCatalog(), stubDownloader{}, installs.New(t.TempDir()))
	m.Install("GE-Proton0-0")
	go m.Close()

	var buf bytes.Buffer
	err := followOperation(&buf, m.Events())
	if err == nil || !strings.Contains(err.Error(), manager.MsgReleaseNotFound) {
		t.Errorf("followOperation() error = %v, want %q", err, manager.MsgReleaseNotFound)
	}
}

func TestFollowOperation_NoOutcome(t *testing.T) {
	testEnv(t)
	events := make(chan manager.Event, 1)
	events <- manager.PhaseProgress{Tag: testTag, Phase: manager.StateResolving}
	close(events)

	var buf bytes.Buffer
	if err := followOperation(&buf, events); err == nil {
		t.Error("expected error when no outcome is reported")
	}
}

func TestFollowOperation_UnknownSize(t *testing.T) {
	testEnv(t)
	now := time.Now()
	events := make(chan manager.Event, 4)
	events <- manager.DownloadProgress{Tag: testTag, Done: 2048}
	events <- manager.DownloadProgress{Tag: testTag, Done: 4096}
	events <- manager.OperationFinished{Tag: testTag, Kind: manager.KindInstall, Success: true,
		Message: manager.MsgInstalled, StartedAt: now, FinishedAt: now}
	close(events)

	var buf bytes.Buffer
	if err := followOperation(&buf, events); err != nil {
		t.Fatalf("followOperation() failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Downloading "+testTag+" (2.0 KiB)") {
		t.Errorf("spinner message missing:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "%") {
		t.Errorf("unknown size must not show a percentage:\n%s", buf.String())
	}
}

func TestProtonDefault(t *testing.T) {
	home := testEnv(t)
	installRuntime(t, home, testTag)
	setFlag(t, &protonDefaultClr, false)

	cmd, buf := newTestCmd()
	if err := runProtonDefault(cmd, []string{"GE-Proton0-0"}); err == nil {
		t.Error("expected error for a runtime that is not installed")
	}

	if err := runProtonDefault(cmd, []string{testTag}); err != nil {
		t.Fatalf("runProtonDefault() failed: %v", err)
	}
	if got := readConfig(t).DefaultProton; got != testTag {
		t.Errorf("DefaultProton = %q, want %q", got, testTag)
	}

	buf.Reset()
	if err := runProtonDefault(cmd, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != testTag {
		t.Errorf("show default = %q, want %q", buf.String(), testTag)
	}

	setFlag(t, &protonDefaultClr, true)
	if err := runProtonDefault(cmd, nil); err != nil {
		t.Fatal(err)
	}
	if got := readConfig(t).DefaultProton; got != "" {
		t.Errorf("DefaultProton = %q after --clear, want empty", got)
	}
}
