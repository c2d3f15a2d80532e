// Package hub fetches a tokenizer configuration file (a tokenizer.json or a
// .gguf model file) from a remote URL into a local cache directory, the way
// the upstream loaders need it on disk before tokenizers/hftokenizer or
// tokenizers/ggufvocab can parse it. A source-lock file coordinates
// concurrent fetches of the same URL across processes, and a download is
// only ever visible in the cache after an atomic rename, so a reader never
// observes a partially written file.
package hub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultDirCreationPerm is the permission used when creating cache
// directories.
const DefaultDirCreationPerm = 0o755

// Source fetches and caches configuration files under a single base
// directory.
type Source struct {
	baseDir string
	client  *http.Client
}

// New creates a Source caching downloads under baseDir. New does no I/O;
// Fetch creates baseDir if it doesn't already exist.
func New(baseDir string) *Source {
	return &Source{baseDir: baseDir, client: http.DefaultClient}
}

// WithHTTPClient overrides the http.Client used for fetches, for tests that
// need to point at a local server.
func (s *Source) WithHTTPClient(client *http.Client) *Source {
	s.client = client
	return s
}

// CachePath returns the local path a given source URL would be cached at,
// without fetching anything.
func (s *Source) CachePath(sourceURL string) string {
	return filepath.Join(s.baseDir, cacheKey(sourceURL))
}

// Fetch returns the local path to sourceURL's content, downloading it into
// the cache if it isn't already there. Concurrent calls (from this process
// or another) for the same URL coordinate through a lock file so only one
// of them performs the actual download.
func (s *Source) Fetch(ctx context.Context, sourceURL string) (string, error) {
	reqID := uuid.NewString()
	target := s.CachePath(sourceURL)

	if fileExists(target) {
		klog.V(2).Infof("hub[%s]: cache hit for %s at %s", reqID, sourceURL, target)
		return target, nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), DefaultDirCreationPerm); err != nil {
		return "", errors.Wrapf(err, "creating cache directory for %q", sourceURL)
	}

	lockPath := target + ".lock"
	var downloadErr error
	lockErr := execOnFileLock(lockPath, func() {
		if fileExists(target) {
			klog.V(2).Infof("hub[%s]: %s was downloaded by a concurrent fetch", reqID, sourceURL)
			return
		}
		downloadErr = s.download(ctx, reqID, sourceURL, target)
	})
	if downloadErr != nil {
		return "", downloadErr
	}
	if lockErr != nil {
		return "", errors.Wrapf(lockErr, "locking %q to fetch %q", lockPath, sourceURL)
	}
	return target, nil
}

func (s *Source) download(ctx context.Context, reqID, sourceURL, target string) error {
	klog.Infof("hub[%s]: downloading %s", reqID, sourceURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return errors.Wrapf(err, "building request for %q", sourceURL)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "fetching %q", sourceURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("fetching %q: unexpected status %s", sourceURL, resp.Status)
	}

	tmpPath := target + ".downloading"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "creating temporary file %q", tmpPath)
	}
	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "writing %q", tmpPath)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "closing %q", tmpPath)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return errors.Wrapf(err, "moving %q to %q", tmpPath, target)
	}

	klog.Infof("hub[%s]: cached %s at %s", reqID, sourceURL, target)
	return nil
}

// execOnFileLock acquires an exclusive lock on lockPath, running fn once it
// does, and releases it afterward. It polls with a randomized 1-2 second
// period while the lock is held elsewhere.
func execOnFileLock(lockPath string, fn func()) error {
	fileLock := flock.New(lockPath)
	for {
		locked, err := fileLock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "locking %q", lockPath)
		}
		if locked {
			break
		}
		time.Sleep(time.Millisecond * time.Duration(1000+rand.Intn(1000)))
	}
	defer fileLock.Unlock()
	fn()
	return nil
}

// cacheKey derives a cache-safe file name from a source URL: the URL's base
// name if it has one ("file" otherwise), prefixed with a hash of the whole
// URL so two different sources with the same file name never collide.
func cacheKey(sourceURL string) string {
	h := sha256.Sum256([]byte(sourceURL))
	digest := hex.EncodeToString(h[:])[:16]

	base := "file"
	if u, err := url.Parse(sourceURL); err == nil {
		if b := filepath.Base(u.Path); b != "" && b != "." && b != "/" {
			base = b
		}
	}
	return digest + "-" + base
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
