package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watch processes files once, then again each time one of them is written
// or recreated, until ctx is done. Pipeline errors are reported and do not
// stop the loop.
func watch(ctx context.Context, files []string, out, errOut io.Writer) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch directories: editors often replace a file instead of writing it
	dirs := make(map[string]bool)
	for _, f := range files {
		dir := filepath.Dir(f)
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	for _, f := range files {
		rerun(f, out, errOut)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			for _, f := range files {
				if sameFile(ev.Name, f) {
					rerun(f, out, errOut)
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(errOut, "ralph-nir: watch: %v\n", err)
		}
	}
}

func rerun(filename string, out, errOut io.Writer) {
	if err := compile(filename, out, errOut); err != nil {
		fmt.Fprintf(errOut, "ralph-nir: %v\n", err)
	}
}
