package engine

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/qrioso-software/qriosdeploy/internal/config"
	"github.com/qrioso-software/qriosdeploy/internal/util"
)

// debounceWindow coalesces bursts of file events (editors typically write
// several times per save) into a single redeploy.
const debounceWindow = 800 * time.Millisecond

// WatchRunner redeploys function code whenever watched sources change. The
// infrastructure step runs once up front; after that only the build,
// package and code-update steps repeat.
type WatchRunner struct {
	cfg      *config.DeployConfig
	eng      *Engine
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	pushMu   sync.Mutex
}

// NewWatchRunner creates a watch runner over an engine.
func NewWatchRunner(cfg *config.DeployConfig, eng *Engine) (*WatchRunner, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &WatchRunner{
		cfg:      cfg,
		eng:      eng,
		watcher:  watcher,
		stopChan: make(chan struct{}),
	}, nil
}

// Start performs the initial full deployment, then blocks redeploying code
// on every change until the context is cancelled.
func (wr *WatchRunner) Start(ctx context.Context) error {
	if err := wr.eng.Deploy(ctx); err != nil {
		return err
	}

	if err := wr.setupFileWatchers(); err != nil {
		return err
	}

	log.Println("👀 Watch mode enabled: source changes will rebuild and push function code")
	wr.watchForChanges(ctx)
	return nil
}

// Stop ends the watch loop and releases the watcher.
func (wr *WatchRunner) Stop() {
	close(wr.stopChan)
	wr.watcher.Close()
}

func (wr *WatchRunner) setupFileWatchers() error {
	paths := wr.cfg.Watch.Paths
	if len(paths) == 0 {
		paths = []string{"."}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			log.Printf("⚠️ Skipping missing watch path %s: %v", p, err)
			continue
		}

		dirs, err := util.SubdirsRecursively(p)
		if err != nil {
			log.Printf("⚠️ Could not walk %s: %v", p, err)
			continue
		}
		for _, dir := range dirs {
			if wr.isBuildOutput(dir) {
				continue
			}
			if err := wr.watcher.Add(dir); err != nil {
				log.Printf("⚠️ Could not watch %s: %v", dir, err)
			}
		}
		log.Printf("👀 Watching: %s", p)
	}
	return nil
}

func (wr *WatchRunner) watchForChanges(ctx context.Context) {
	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	defer debounceTimer.Stop()

	pending := false

	for {
		select {
		case event, ok := <-wr.watcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if wr.isBuildOutput(event.Name) {
				// The build and package steps write into the output dirs
				// while we watch; pushing on our own output would loop
				// push -> build -> event forever.
				continue
			}
			pending = true
			debounceTimer.Reset(debounceWindow)

		case <-debounceTimer.C:
			if pending {
				pending = false
				wr.push(ctx)
			}

		case err, ok := <-wr.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Watcher error: %v", err)

		case <-ctx.Done():
			return

		case <-wr.stopChan:
			return
		}
	}
}

func (wr *WatchRunner) push(ctx context.Context) {
	wr.pushMu.Lock()
	defer wr.pushMu.Unlock()

	log.Println("🔄 Change detected, pushing function code")
	if err := wr.eng.PushCode(ctx); err != nil {
		// Watch mode keeps running after a failed push; the next change
		// gets a fresh attempt.
		log.Printf("❌ Push failed: %v", err)
		return
	}
	log.Println("✅ Function code pushed")
}

// outputDirs returns the directories the configured artifacts land in.
func (wr *WatchRunner) outputDirs() []string {
	var dirs []string
	for _, artifact := range []string{wr.cfg.Functions.Primary.Artifact, wr.cfg.Functions.Authorizer.Artifact} {
		if artifact != "" {
			dirs = append(dirs, filepath.Clean(filepath.Dir(artifact)))
		}
	}
	return dirs
}

// isBuildOutput reports whether path is produced by the build or package
// steps: any zip archive, or anything under an artifact output directory.
func (wr *WatchRunner) isBuildOutput(path string) bool {
	if strings.HasSuffix(path, ".zip") {
		return true
	}
	clean := filepath.Clean(path)
	for _, dir := range wr.outputDirs() {
		if clean == dir || strings.HasPrefix(clean, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
