package definition

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/resource"
	"github.com/artpar/resrun/core/value"
	"github.com/artpar/resrun/ports"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FileLoader resolves references to definition files. Relative references
// resolve against the importing definition's directory. Parsed files are
// cached until they change on disk or are invalidated.
type FileLoader struct {
	mu       sync.RWMutex
	cache    map[string]resource.Source
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	watched  map[string]bool
	onChange []func(path string)
	stopCh   chan struct{}
}

// NewFileLoader creates a file loader with an empty cache.
func NewFileLoader(logger zerolog.Logger) *FileLoader {
	return &FileLoader{
		cache:   make(map[string]resource.Source),
		logger:  logger,
		watched: make(map[string]bool),
		stopCh:  make(chan struct{}),
	}
}

// Load implements resource.Loader.
func (l *FileLoader) Load(ctx context.Context, ref, dir string) (resource.Source, error) {
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, ref)
	}
	file, err := Resolve(path)
	if err != nil {
		return resource.Source{}, err
	}

	l.mu.RLock()
	src, ok := l.cache[file]
	l.mu.RUnlock()
	if ok {
		src.Definition = value.Clone(src.Definition)
		return src, nil
	}

	src, err = ParseFile(file)
	if err != nil {
		return resource.Source{}, err
	}

	l.mu.Lock()
	l.cache[file] = src
	l.mu.Unlock()
	l.watchDir(src.Dir)

	l.logger.Debug().Str("file", file).Msg("definition file parsed")

	src.Definition = value.Clone(src.Definition)
	return src, nil
}

// Invalidate drops the cached definition of path.
func (l *FileLoader) Invalidate(path string) {
	l.mu.Lock()
	delete(l.cache, path)
	l.mu.Unlock()
}

// Cached reports whether the definition file at path is cached.
func (l *FileLoader) Cached(path string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.cache[path]
	return ok
}

// OnChange registers a callback called with the path of a cached file
// after it changed on disk.
func (l *FileLoader) OnChange(fn func(path string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts watching the directories of cached files, and of files
// loaded later, invalidating entries whose files change.
func (l *FileLoader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	l.mu.Lock()
	l.watcher = watcher
	var dirs []string
	for _, src := range l.cache {
		dirs = append(dirs, src.Dir)
	}
	l.mu.Unlock()

	for _, d := range dirs {
		l.watchDir(d)
	}

	go l.watchLoop()
	return nil
}

// Stop stops watching for file changes.
func (l *FileLoader) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
	if l.watcher != nil {
		l.watcher.Close()
	}
}

func (l *FileLoader) watchDir(dir string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher == nil || l.watched[dir] {
		return
	}
	if err := l.watcher.Add(dir); err != nil {
		l.logger.Error().Err(err).Str("dir", dir).Msg("watch definition directory")
		return
	}
	l.watched[dir] = true
	l.logger.Debug().Str("dir", dir).Msg("watching definition directory")
}

func (l *FileLoader) watchLoop() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !l.Cached(event.Name) {
				continue
			}

			l.logger.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("definition file changed")

			l.Invalidate(event.Name)
			l.mu.RLock()
			callbacks := append([]func(string){}, l.onChange...)
			l.mu.RUnlock()
			for _, fn := range callbacks {
				fn(event.Name)
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("definition watcher error")

		case <-l.stopCh:
			return
		}
	}
}

// StoreLoader resolves "name" and "name@version" references against the
// published definitions of a store.
type StoreLoader struct {
	Store ports.DefinitionStore
}

// Load implements resource.Loader.
func (l StoreLoader) Load(ctx context.Context, ref, dir string) (resource.Source, error) {
	name, version := ref, ""
	if i := strings.LastIndex(ref, "@"); i > 0 {
		name, version = ref[:i], ref[i+1:]
	}
	if err := resource.ValidateName(name); err != nil {
		return resource.Source{}, errs.New(errs.CodeNotFound, "%q is not a published resource name", ref)
	}

	p, err := l.Store.Get(ctx, name, version)
	if err != nil {
		return resource.Source{}, err
	}
	def, err := Parse(p.Definition)
	if err != nil {
		return resource.Source{}, errs.With(err, "published %s@%s", p.Name, p.Version)
	}
	return resource.Source{Definition: def, Location: ref}, nil
}

// Chain tries each loader in order, moving on while references are not
// found. Any other failure stops the search.
type Chain []resource.Loader

// Load implements resource.Loader.
func (c Chain) Load(ctx context.Context, ref, dir string) (resource.Source, error) {
	var last error
	for _, l := range c {
		src, err := l.Load(ctx, ref, dir)
		if err == nil {
			return src, nil
		}
		if !errs.IsNotFound(err) {
			return resource.Source{}, err
		}
		last = err
	}
	if last == nil {
		last = errs.New(errs.CodeNotFound, "cannot resolve %q", ref)
	}
	return resource.Source{}, last
}
