package app

import (
	"strings"
	"testing"
	"time"

	"github.com/zelotez/winemgr/internal/store"
)

func TestHistory(t *testing.T) {
	testEnv(t)
	setFlag(t, &historyLimit, 20)
	setFlag(t, &historyOutput, "table")

	cmd, buf := newTestCmd()
	if err := runHistory(cmd, nil); err != nil {
		t.Fatalf("runHistory() failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No operations recorded") {
		t.Errorf("unexpected empty output: %q", buf.String())
	}

	db, err := openHistory()
	if err != nil {
		t.Fatal(err)
	}
	base := time.Now().Add(-time.Hour)
	ops := []*store.Operation{
		{Tag: "GE-Proton8-1", Kind: "install", Success: true, Message: "Installed", StartedAt: base, FinishedAt: base.Add(time.Minute)},
		{Tag: "GE-Proton9-1", Kind: "uninstall", Success: false, Message: "Not installed", StartedAt: base, FinishedAt: base.Add(2 * time.Minute)},
	}
	for _, op := range ops {
		if err := db.InsertOperation(op); err != nil {
			t.Fatal(err)
		}
	}
	db.Close()

	buf.Reset()
	if err := runHistory(cmd, nil); err != nil {
		t.Fatalf("runHistory() failed: %v", err)
	}
	out := buf.String()
	if strings.Index(out, "GE-Proton9-1") > strings.Index(out, "GE-Proton8-1") {
		t.Errorf("newest operation should come first:\n%s", out)
	}

	setFlag(t, &historyLimit, 1)
	buf.Reset()
	if err := runHistory(cmd, nil); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "GE-Proton8-1") {
		t.Errorf("--limit 1 should only show the newest:\n%s", buf.String())
	}
}
