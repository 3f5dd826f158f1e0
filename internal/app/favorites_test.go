package app

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zelotez/winemgr/internal/store"
)

func TestFavorites_AddListRemove(t *testing.T) {
	home := testEnv(t)
	prefix := makePrefix(t, filepath.Join(home, ".wine"))
	game := writeExe(t, prefix, "Games/game.exe")
	setFlag(t, &favoritesOutput, "table")

	cmd, buf := newTestCmd()
	if err := runFavoritesAdd(cmd, []string{prefix, "Games/game.exe"}); err != nil {
		t.Fatalf("runFavoritesAdd() failed: %v", err)
	}
	if favs := readConfig(t).Favorites(prefix); len(favs) != 1 || favs[0] != game {
		t.Fatalf("Favorites() = %v, want [%s]", favs, game)
	}

	buf.Reset()
	if err := runFavoritesAdd(cmd, []string{prefix, game}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "already") {
		t.Errorf("second add should be a no-op, got %q", buf.String())
	}

	buf.Reset()
	if err := runFavoritesList(cmd, []string{prefix}); err != nil {
		t.Fatalf("runFavoritesList() failed: %v", err)
	}
	if !strings.Contains(buf.String(), "game.exe") || !strings.Contains(buf.String(), "never") {
		t.Errorf("unexpected list:\n%s", buf.String())
	}

	if err := runFavoritesRemove(cmd, []string{prefix, "Games/game.exe"}); err != nil {
		t.Fatalf("runFavoritesRemove() failed: %v", err)
	}
	if favs := readConfig(t).Favorites(prefix); len(favs) != 0 {
		t.Errorf("Favorites() = %v after remove, want none", favs)
	}
	if err := runFavoritesRemove(cmd, []string{prefix, "Games/game.exe"}); err == nil {
		t.Error("removing a non-favorite should fail")
	}
}

func TestFavorites_AddMissingExe(t *testing.T) {
	home := testEnv(t)
	prefix := makePrefix(t, filepath.Join(home, ".wine"))

	cmd, _ := newTestCmd()
	if err := runFavoritesAdd(cmd, []string{prefix, "missing.exe"}); err == nil {
		t.Error("adding a missing executable should fail")
	}
}

func TestFavorites_RemoveDeletedExe(t *testing.T) {
	home := testEnv(t)
	prefix := makePrefix(t, filepath.Join(home, ".wine"))
	gone := filepath.Join(prefix, "drive_c", "Old", "old.exe")
	writeConfig(t, readConfig(t).WithFavorite(prefix, gone))

	cmd, _ := newTestCmd()
	if err := runFavoritesRemove(cmd, []string{prefix, "Old/old.exe"}); err != nil {
		t.Fatalf("runFavoritesRemove() failed: %v", err)
	}
	if favs := readConfig(t).Favorites(prefix); len(favs) != 0 {
		t.Errorf("Favorites() = %v, want none", favs)
	}
}

func TestFavoriteRows_LaunchStats(t *testing.T) {
	home := testEnv(t)
	prefix := makePrefix(t, filepath.Join(home, ".wine"))
	game := writeExe(t, prefix, "Games/game.exe")

	db, err := openHistory()
	if err != nil {
		t.Fatal(err)
	}
	launched := time.Now().Add(-time.Hour).UTC()
	for i := 0; i < 2; i++ {
		if err := db.InsertLaunch(&store.Launch{Prefix: prefix, Exe: game, Runtime: "Wine", LaunchedAt: launched}); err != nil {
			t.Fatal(err)
		}
	}
	db.Close()

	rows := favoriteRows(prefix, []string{game, "other.exe"})
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Launches != 2 || !rows[0].LastLaunched.Equal(launched) {
		t.Errorf("rows[0] = %+v, want 2 launches at %v", rows[0], launched)
	}
	if rows[1].Launches != 0 || !rows[1].LastLaunched.IsZero() {
		t.Errorf("rows[1] = %+v, want no launches", rows[1])
	}
}
