package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// defaultReloadDelay debounces bursts of policy file events.
const defaultReloadDelay = 500 * time.Millisecond

// cachedPolicy is a parsed policy file and the file state it was parsed
// from.
type cachedPolicy struct {
	policy  *Policy
	modTime time.Time
	size    int64
}

// Loader reads policies from .rego and .json files. Parsed files are cached
// until they change on disk.
type Loader struct {
	logger zerolog.Logger
	delay  time.Duration

	mu      sync.RWMutex
	cache   map[string]cachedPolicy
	watcher *fsnotify.Watcher
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		delay:  defaultReloadDelay,
		cache:  make(map[string]cachedPolicy),
	}
}

// LoadFromPaths loads policies from files and directories, in order.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var all []Policy

	for _, path := range paths {
		policies, err := l.loadFromPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		all = append(all, policies...)
	}

	l.logger.Debug().
		Int("total", len(all)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")

	return all, nil
}

func (l *Loader) loadFromPath(ctx context.Context, path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if info.IsDir() {
		return l.loadFromDirectory(ctx, path)
	}

	policy, err := l.loadFromFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return []Policy{*policy}, nil
}

// loadFromDirectory walks dirPath for policy files. Files that fail to parse
// are logged and skipped so one broken file does not hide the rest.
func (l *Loader) loadFromDirectory(ctx context.Context, dirPath string) ([]Policy, error) {
	var policies []Policy

	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isPolicyFile(path) {
			return nil
		}

		policy, err := l.loadFromFile(ctx, path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Skipping policy file")
			return nil
		}
		policies = append(policies, *policy)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return policies, nil
}

// isPolicyFile reports whether path names a policy source. Hidden files,
// such as editor swap files, are ignored.
func isPolicyFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := filepath.Ext(base)
	return ext == ".rego" || ext == ".json"
}

func (l *Loader) loadFromFile(_ context.Context, filePath string) (*Policy, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	l.mu.RLock()
	cached, ok := l.cache[filePath]
	l.mu.RUnlock()
	if ok && cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
		return cached.policy, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var policy *Policy
	switch filepath.Ext(filePath) {
	case ".rego":
		policy = l.parseRegoFile(filePath, data)
	case ".json":
		if policy, err = l.parseJSONFile(data); err != nil {
			return nil, fmt.Errorf("%s: %w", filePath, err)
		}
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filePath)
	}

	l.mu.Lock()
	l.cache[filePath] = cachedPolicy{policy: policy, modTime: info.ModTime(), size: info.Size()}
	l.mu.Unlock()

	l.logger.Debug().
		Str("path", filePath).
		Str("policy", policy.Name).
		Str("severity", string(policy.Severity)).
		Msg("Policy loaded from file")

	return policy, nil
}

// parseRegoFile names the policy after its file. The leading comment block
// supplies the description and severity.
func (l *Loader) parseRegoFile(filePath string, data []byte) *Policy {
	description, severity := l.extractHeader(string(data))
	now := time.Now()

	return &Policy{
		Name:        strings.TrimSuffix(filepath.Base(filePath), ".rego"),
		Description: description,
		Rego:        string(data),
		Severity:    severity,
		Enabled:     true,
		Tags:        []string{"custom"},
		Metadata:    map[string]interface{}{"source": filePath},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// parseJSONFile parses a policy written out as JSON.
func (l *Loader) parseJSONFile(data []byte) (*Policy, error) {
	var policy Policy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
	}
	if policy.Name == "" {
		return nil, fmt.Errorf("JSON policy has no name")
	}
	if !validSeverity(policy.Severity) {
		policy.Severity = SeverityWarning
	}

	now := time.Now()
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	if policy.UpdatedAt.IsZero() {
		policy.UpdatedAt = now
	}
	return &policy, nil
}

// extractHeader reads the leading comment block of a Rego file. A
// "severity: <level>" line sets the policy severity; other lines form the
// description. Unknown levels fall back to warning.
func (l *Loader) extractHeader(content string) (string, Severity) {
	var description strings.Builder
	severity := SeverityWarning

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		comment, ok := strings.CutPrefix(trimmed, "#")
		if !ok {
			if trimmed != "" {
				break
			}
			continue
		}

		comment = strings.TrimSpace(comment)
		if level, ok := strings.CutPrefix(comment, "severity:"); ok {
			if s := Severity(strings.TrimSpace(level)); validSeverity(s) {
				severity = s
			} else {
				l.logger.Warn().Str("severity", string(s)).Msg("Unknown policy severity, using warning")
			}
			continue
		}
		if comment == "" {
			continue
		}
		if description.Len() > 0 {
			description.WriteString(" ")
		}
		description.WriteString(comment)
	}

	return description.String(), severity
}

func validSeverity(s Severity) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Watch reloads the policies under paths after they change and hands them
// to reloadFn. Directories are watched recursively; for files the
// containing directory is watched so that editors replacing the file are
// noticed. Watch returns once watching has started.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	var dirs, files []string
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Not watching missing policy path")
			continue
		}

		if info.IsDir() {
			dirs = append(dirs, abs)
			err = filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return watcher.Add(p)
				}
				return nil
			})
		} else {
			files = append(files, abs)
			err = watcher.Add(filepath.Dir(abs))
		}
		if err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	watched := func(name string) bool {
		name = filepath.Clean(name)
		for _, f := range files {
			if name == f {
				return true
			}
		}
		if !isPolicyFile(name) {
			return false
		}
		for _, d := range dirs {
			if strings.HasPrefix(name, d+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}

	go l.processEvents(ctx, watcher, watched, paths, reloadFn)

	l.logger.Info().Int("paths", len(paths)).Msg("Started watching policy paths")
	return nil
}

func (l *Loader) processEvents(
	ctx context.Context,
	watcher *fsnotify.Watcher,
	watched func(string) bool,
	paths []string,
	reloadFn func([]Policy) error,
) {
	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !watched(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Policy file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(l.delay, func() {
				if err := l.reload(ctx, paths, reloadFn); err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload policies")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (l *Loader) reload(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	policies, err := l.LoadFromPaths(ctx, paths)
	if err != nil {
		return err
	}
	if err := reloadFn(policies); err != nil {
		return fmt.Errorf("failed to apply reloaded policies: %w", err)
	}

	l.logger.Info().Int("count", len(policies)).Msg("Policies reloaded")
	return nil
}

// StopWatching stops a Watch.
func (l *Loader) StopWatching() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher != nil {
		err := l.watcher.Close()
		l.watcher = nil
		return err
	}
	return nil
}

// ClearCache forgets every parsed file.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]cachedPolicy)
}
