package sources

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/fyrsmithlabs/transcriptrag/internal/chunker"
	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
)

const (
	metaPrefix  = "META_"
	textSuffix  = ".txt"
	metaSuffix  = ".json"
	maxNameLen  = 180
	untitled    = "untitled"
	reservedSet = `/\:*?"<>|`
)

// Store keeps side files in a single directory: <name>.txt holds the raw
// text and META_<name>.json the SourceItem, where name is the sanitised
// title. Sources sharing a title get an id digest suffix.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Stored is a side-file pair found on disk.
type Stored struct {
	Item     SourceItem
	TextPath string
}

// NewStore returns a Store rooted at dir. The directory is created on the
// first Save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the side-file directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes both side files and returns the path of the text file.
// Files are written to a temporary name and renamed into place.
func (s *Store) Save(item SourceItem, text string) (string, error) {
	const op = "sources.store.save"
	if err := item.Validate(); err != nil {
		return "", err
	}
	if !utf8.ValidString(text) {
		return "", ragerr.New(op, ragerr.ErrInvalidArgument, "text of %q is not valid UTF-8", item.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", ragerr.Wrap(op, ragerr.ErrSourceUnavailable, err)
	}

	name, err := s.pairName(item)
	if err != nil {
		return "", err
	}
	textPath := filepath.Join(s.dir, name+textSuffix)
	meta, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return "", ragerr.Wrap(op, ragerr.ErrInvalidArgument, err)
	}
	if err := writeAtomic(textPath, []byte(text)); err != nil {
		return "", ragerr.Wrap(op, ragerr.ErrSourceUnavailable, err)
	}
	if err := writeAtomic(filepath.Join(s.dir, metaPrefix+name+metaSuffix), append(meta, '\n')); err != nil {
		return "", ragerr.Wrap(op, ragerr.ErrSourceUnavailable, err)
	}
	return textPath, nil
}

// TextPath returns the path Save would write the text of item to, without
// writing anything.
func (s *Store) TextPath(item SourceItem) (string, error) {
	if err := item.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name, err := s.pairName(item)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name+textSuffix), nil
}

// pairName picks the base name for item. The sanitised title is used
// unless a pair of another source already holds it, in which case a
// digest of the id is appended. A name the source already owns wins over
// a free one so that re-saving never moves its files.
func (s *Store) pairName(item SourceItem) (string, error) {
	base := FileName(item)
	candidates := []string{base, base + " [" + idDigest(item.ID) + "]"}

	free := ""
	for _, name := range candidates {
		owner, err := readMeta(filepath.Join(s.dir, metaPrefix+name+metaSuffix))
		switch {
		case err == nil && owner.ID == item.ID:
			return name, nil
		case errors.Is(err, fs.ErrNotExist):
			if free == "" {
				free = name
			}
		case errors.Is(err, ragerr.ErrSourceUnavailable):
			return "", err
		}
	}
	if free == "" {
		return "", ragerr.New("sources.store.pair_name", ragerr.ErrSourceUnavailable,
			"side-file names for %q are held by other sources", item.ID)
	}
	return free, nil
}

func idDigest(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:4])
}

// List returns every complete side-file pair, ordered by file name. Pairs
// with a missing text file or unreadable metadata are skipped and
// reported in the returned error.
func (s *Store) List() ([]Stored, error) {
	const op = "sources.store.list"
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ragerr.Wrap(op, ragerr.ErrSourceUnavailable, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, metaPrefix) && strings.HasSuffix(n, metaSuffix) {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	var (
		out  []Stored
		errs []error
	)
	for _, n := range names {
		base := strings.TrimSuffix(strings.TrimPrefix(n, metaPrefix), metaSuffix)
		item, err := readMeta(filepath.Join(s.dir, n))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		textPath := filepath.Join(s.dir, base+textSuffix)
		if _, err := os.Stat(textPath); err != nil {
			errs = append(errs, ragerr.Wrap(op, ragerr.ErrSourceUnavailable, err))
			continue
		}
		out = append(out, Stored{Item: item, TextPath: textPath})
	}
	return out, errors.Join(errs...)
}

// Load returns the side-file pair with the given base name.
func (s *Store) Load(name string) (Stored, error) {
	const op = "sources.store.load"
	item, err := readMeta(filepath.Join(s.dir, metaPrefix+name+metaSuffix))
	if err != nil {
		return Stored{}, err
	}
	textPath := filepath.Join(s.dir, name+textSuffix)
	if _, err := os.Stat(textPath); err != nil {
		return Stored{}, ragerr.Wrap(op, ragerr.ErrSourceUnavailable, err)
	}
	return Stored{Item: item, TextPath: textPath}, nil
}

// PairName returns the base name shared by both files of a pair, given
// the path of either one. Temporary files and unrelated names report false.
func PairName(path string) (string, bool) {
	n := filepath.Base(path)
	switch {
	case strings.HasPrefix(n, "."):
		return "", false
	case strings.HasPrefix(n, metaPrefix) && strings.HasSuffix(n, metaSuffix):
		return strings.TrimSuffix(strings.TrimPrefix(n, metaPrefix), metaSuffix), true
	case strings.HasSuffix(n, textSuffix):
		return strings.TrimSuffix(n, textSuffix), true
	}
	return "", false
}

// ReadText returns the full text of a side file.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ragerr.Wrap("sources.read_text", ragerr.ErrSourceUnavailable, err)
	}
	return string(data), nil
}

// ReadRange returns the characters [start, end) of the text at path.
func ReadRange(path string, start, end int) (string, error) {
	const op = "sources.read_range"
	text, err := ReadText(path)
	if err != nil {
		return "", err
	}
	part, err := chunker.Slice(text, start, end)
	if err != nil {
		// The file no longer matches the offsets recorded at ingest time.
		return "", ragerr.New(op, ragerr.ErrSourceUnavailable, "%s: range [%d,%d) outside text of %d characters",
			path, start, end, chunker.Len(text))
	}
	return part, nil
}

func readMeta(path string) (SourceItem, error) {
	const op = "sources.store.read_meta"
	data, err := os.ReadFile(path)
	if err != nil {
		return SourceItem{}, ragerr.Wrap(op, ragerr.ErrSourceUnavailable, err)
	}
	var item SourceItem
	if err := json.Unmarshal(data, &item); err != nil {
		return SourceItem{}, ragerr.Wrap(op, ragerr.ErrInvalidArgument, fmt.Errorf("%s: %w", path, err))
	}
	if item.SourceType == "" {
		item.SourceType = SourceVideo
	}
	if err := item.Validate(); err != nil {
		return SourceItem{}, fmt.Errorf("%s: %w", path, err)
	}
	return item, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// FileName returns the side-file base name of item: its sanitised title,
// or its sanitised id when the title is empty.
func FileName(item SourceItem) string {
	if name := SanitizeTitle(item.Title); name != untitled {
		return name
	}
	return SanitizeTitle(item.ID)
}

// SanitizeTitle turns a title into a portable file name: path separators,
// reserved and control characters become "_", surrounding spaces and dots
// are trimmed and the result is cut to a bounded length on a rune boundary.
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case strings.ContainsRune(reservedSet, r), unicode.IsControl(r):
			b.WriteRune('_')
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	name := strings.Trim(collapse(b.String()), " .")
	if len(name) > maxNameLen {
		cut := maxNameLen
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = strings.TrimRight(name[:cut], " .")
	}
	if name == "" || strings.Trim(name, "_") == "" {
		return untitled
	}
	return name
}
