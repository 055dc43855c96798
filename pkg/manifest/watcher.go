package manifest

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openmend/openmend/pkg/telemetry"
)

// Watcher reloads a manifest source whenever its CUE files change and
// delivers the freshly parsed manifests on a channel. Parse failures are
// logged and skipped so a half-saved file never tears down the watch.
type Watcher struct {
	parser   *Parser
	source   string
	fsw      *fsnotify.Watcher
	logger   *telemetry.Logger
	debounce time.Duration

	manifests chan *Manifest
}

// NewWatcher creates a watcher over a manifest file or directory.
func NewWatcher(parser *Parser, source string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(source); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{
		parser:    parser,
		source:    source,
		fsw:       fsw,
		logger:    telemetry.NopLogger(),
		debounce:  250 * time.Millisecond,
		manifests: make(chan *Manifest, 1),
	}, nil
}

// WithLogger attaches a logger to the watcher.
func (w *Watcher) WithLogger(logger *telemetry.Logger) *Watcher {
	if logger != nil {
		w.logger = logger.NewComponentLogger("manifest-watcher")
	}
	return w
}

// Manifests returns the channel of reloaded manifests.
func (w *Watcher) Manifests() <-chan *Manifest {
	return w.manifests
}

// Watch processes file events until the context is cancelled. Rapid
// event bursts (editors write several times per save) are debounced into
// one reload.
func (w *Watcher) Watch(ctx context.Context) error {
	defer close(w.manifests)

	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("manifest watch error")

		case <-pending:
			pending = nil
			w.reload(ctx)
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Rename) && !event.Op.Has(fsnotify.Remove) {
		return false
	}
	return strings.HasSuffix(event.Name, ".cue") ||
		filepath.Clean(event.Name) == filepath.Clean(w.source)
}

func (w *Watcher) reload(ctx context.Context) {
	m, err := w.parser.Load(ctx, w.source)
	if err != nil {
		w.logger.WithError(err).Warn("manifest reload failed, keeping previous manifest")
		return
	}
	select {
	case w.manifests <- m:
	default:
		// Drop the stale buffered manifest and deliver the new one.
		select {
		case <-w.manifests:
		default:
		}
		select {
		case w.manifests <- m:
		default:
		}
	}
	w.logger.Info("manifest reloaded")
}
