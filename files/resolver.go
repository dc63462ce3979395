package files

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/hjlabs/hjmcpsse/progress"
	"github.com/hjlabs/hjmcpsse/protocol"
)

// DefaultMaxSize is the largest file Read returns.
const DefaultMaxSize = 1 << 20

// progressEvery is the number of directory entries between progress updates.
const progressEvery = 64

// Resolver maps identifiers to paths under Root.
type Resolver struct {
	root    string
	maxSize int64
	logger  *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxSize overrides DefaultMaxSize.
func WithMaxSize(n int64) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxSize = n
		}
	}
}

// WithLogger sets the logger used for denied accesses and watcher errors.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a resolver confined to root, which must be an existing directory.
func New(root string, opts ...Option) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve root %q", root)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve root %q", root)
	}
	fi, err := os.Stat(real)
	if err != nil {
		return nil, errors.Wrapf(err, "stat root %q", root)
	}
	if !fi.IsDir() {
		return nil, errors.Newf("root %q is not a directory", root)
	}

	r := &Resolver{
		root:    real,
		maxSize: DefaultMaxSize,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Root returns the absolute, symlink-free root directory.
func (r *Resolver) Root() string { return r.root }

// MaxSize returns the largest file size Read accepts.
func (r *Resolver) MaxSize() int64 { return r.maxSize }

// Clean normalizes id and returns the absolute path it names. It never
// touches the filesystem.
func (r *Resolver) Clean(id string) (string, error) {
	if id == "" {
		id = "."
	}
	if strings.ContainsRune(id, 0) {
		return "", errors.Mark(errors.Newf("identifier %q contains a NUL byte", id), protocol.ErrInvalidArguments)
	}
	if strings.HasPrefix(id, "/") || filepath.IsAbs(id) || filepath.VolumeName(id) != "" {
		return "", errors.Wrapf(protocol.ErrAccessDenied, "absolute path %q", id)
	}
	p := filepath.Join(r.root, filepath.FromSlash(id))
	if !within(p, r.root) {
		return "", errors.Wrapf(protocol.ErrAccessDenied, "%q is outside the root", id)
	}
	return p, nil
}

// resolve cleans id and follows symlinks, re-checking containment.
func (r *Resolver) resolve(id string) (string, error) {
	p, err := r.Clean(id)
	if err != nil {
		r.denied(id, err)
		return "", err
	}
	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", classify(err, id)
	}
	if !within(real, r.root) {
		err := errors.Wrapf(protocol.ErrAccessDenied, "%q links outside the root", id)
		r.denied(id, err)
		return "", err
	}
	return real, nil
}

func (r *Resolver) denied(id string, err error) {
	if errors.Is(err, protocol.ErrAccessDenied) {
		r.logger.Warn("resource access denied", zap.String("id", id), zap.Error(err))
	}
}

// Rel returns the slash-separated identifier of an absolute path under the root.
func (r *Resolver) Rel(p string) string {
	rel, err := filepath.Rel(r.root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}

// Stat reports whether id names a directory.
func (r *Resolver) Stat(ctx context.Context, id string) (bool, error) {
	p, err := r.resolve(id)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return false, classify(err, id)
	}
	return fi.IsDir(), nil
}

// FileInfo describes a regular file in a Listing.
type FileInfo struct {
	Name   string  `json:"name"`
	Size   int64   `json:"size"`
	SizeKB float64 `json:"size_kb"`
}

// Listing is the content of one directory.
type Listing struct {
	Path        string     `json:"path"`
	Directories []string   `json:"directories"`
	Files       []FileInfo `json:"files"`
}

// List returns the direct children of the directory id. Entries whose
// metadata cannot be read are skipped.
func (r *Resolver) List(ctx context.Context, id string) (*Listing, error) {
	p, err := r.resolve(id)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return nil, classify(err, id)
	}
	if !fi.IsDir() {
		return nil, errors.Wrapf(protocol.ErrNotADirectory, "%q", id)
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, classify(err, id)
	}

	reporter := progress.FromContext(ctx)
	total := float64(len(entries))
	listing := &Listing{Path: r.Rel(p), Directories: []string{}, Files: []FileInfo{}}
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "listing %q", id)
		}
		if i > 0 && i%progressEvery == 0 {
			_ = reporter.Report(float64(i), total, "")
		}
		info, err := os.Stat(filepath.Join(p, e.Name()))
		if err != nil {
			continue
		}
		if info.IsDir() {
			listing.Directories = append(listing.Directories, e.Name())
			continue
		}
		listing.Files = append(listing.Files, FileInfo{
			Name:   e.Name(),
			Size:   info.Size(),
			SizeKB: float64(info.Size()) / 1024,
		})
	}
	_ = reporter.Report(total, total, "")

	sort.Slice(listing.Directories, func(i, j int) bool {
		return lessFold(listing.Directories[i], listing.Directories[j])
	})
	sort.Slice(listing.Files, func(i, j int) bool {
		return lessFold(listing.Files[i].Name, listing.Files[j].Name)
	})
	return listing, nil
}

// Complete returns identifiers under the root that start with prefix.
// Directories carry a trailing slash.
func (r *Resolver) Complete(ctx context.Context, prefix string, limit int) []string {
	dir, base := ".", prefix
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir, base = prefix[:i], prefix[i+1:]
		if dir == "" {
			return nil
		}
	}
	listing, err := r.List(ctx, dir)
	if err != nil {
		return nil
	}
	join := func(name string) string {
		if dir == "." {
			return name
		}
		return dir + "/" + name
	}
	var out []string
	for _, d := range listing.Directories {
		if strings.HasPrefix(d, base) {
			out = append(out, join(d)+"/")
		}
	}
	for _, f := range listing.Files {
		if strings.HasPrefix(f.Name, base) {
			out = append(out, join(f.Name))
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// classify maps filesystem errors onto the resolver's error kinds.
func classify(err error, id string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errors.Wrapf(protocol.ErrNotFound, "%q", id)
	case errors.Is(err, fs.ErrPermission):
		return errors.Wrapf(protocol.ErrPermissionDenied, "%q", id)
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		// ENOTDIR: an intermediate component is a file.
		if isNotDir(pe.Err) {
			return errors.Wrapf(protocol.ErrNotFound, "%q", id)
		}
	}
	return errors.Wrapf(err, "%q", id)
}

// within reports whether target is root or a descendant of root.
func within(target, root string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func lessFold(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}
