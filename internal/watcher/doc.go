// Package watcher rediscovers prefixes when the discovery roots change.
//
// Every existing root and its immediate subdirectories are registered with
// fsnotify. Creations, removals and renames are collected for a debounce
// window and then reported through a single callback. Events below a drive_c
// directory and plain writes are ignored.
//
// Example usage:
//
//	w, err := watcher.New(engine.Roots(cfg.ExtraPrefixDirs), func() {
//		render(engine.Discover(cfg.ExtraPrefixDirs))
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := w.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer w.Stop()
package watcher
