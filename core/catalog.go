package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/signalsfoundry/gnss-telemetry-synth/internal/logging"
	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

// CatalogParseError reports an element-set group that could not be parsed.
// The group is skipped and parsing continues with the next one.
type CatalogParseError struct {
	Group int // zero-based index of the 3-line group
	Name  string
	Err   error
}

func (e *CatalogParseError) Error() string {
	return fmt.Sprintf("catalog group %d (%q): %v", e.Group, e.Name, e.Err)
}

func (e *CatalogParseError) Unwrap() error { return e.Err }

var (
	errShortLine    = errors.New("element line too short")
	errLineNumber   = errors.New("unexpected element line number")
	errNumericField = errors.New("malformed numeric field")
)

// minimum lengths needed by the field offsets below
const (
	minLine1Len = 61
	minLine2Len = 63
)

var prnPattern = regexp.MustCompile(`\(PRN\s*(\d+)\)`)

// ParseCatalog reads 3-line element-set groups (name, line 1, line 2) from r.
// Blank lines are ignored and a trailing partial group is dropped. Groups
// that fail to parse are reported as *CatalogParseError values and skipped;
// a read error from r is appended last.
func ParseCatalog(r io.Reader) ([]model.OrbitalElementSet, []error) {
	sets, errs, err := parseCatalog(r)
	if err != nil {
		errs = append(errs, err)
	}
	return sets, errs
}

func parseCatalog(r io.Reader) ([]model.OrbitalElementSet, []error, error) {
	var (
		sets  []model.OrbitalElementSet
		errs  []error
		group []string
		index int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		group = append(group, line)
		if len(group) < 3 {
			continue
		}

		set, err := ParseElementSet(group[0], group[1], group[2])
		if err != nil {
			errs = append(errs, &CatalogParseError{Group: index, Name: strings.TrimSpace(group[0]), Err: err})
		} else {
			sets = append(sets, set)
		}
		group = group[:0]
		index++
	}
	if err := scanner.Err(); err != nil {
		return sets, errs, fmt.Errorf("read catalog: %w", err)
	}
	return sets, errs, nil
}

// ParseElementSet parses a single named two-line element set. Every numeric
// field is validated at the same column offsets the SGP4 propagator reads,
// so a set accepted here can always be initialised.
func ParseElementSet(name, line1, line2 string) (model.OrbitalElementSet, error) {
	name = strings.TrimSpace(strings.TrimPrefix(name, "0 "))
	set := model.OrbitalElementSet{Name: name, Line1: line1, Line2: line2}

	if m := prnPattern.FindStringSubmatch(name); m != nil {
		prn, err := strconv.Atoi(m[1])
		if err == nil {
			set.PRN = prn
		}
	}

	if len(line1) < minLine1Len {
		return set, fmt.Errorf("line 1: %w (%d chars)", errShortLine, len(line1))
	}
	if len(line2) < minLine2Len {
		return set, fmt.Errorf("line 2: %w (%d chars)", errShortLine, len(line2))
	}
	if line1[0] != '1' || line2[0] != '2' {
		return set, errLineNumber
	}

	var err error
	field := func(label, raw string, compact bool) float64 {
		if err != nil {
			return 0
		}
		s := raw
		if compact {
			s = strings.Replace(s, " ", "", 2)
		}
		v, perr := strconv.ParseFloat(s, 64)
		if perr != nil {
			err = fmt.Errorf("%s %q: %w", label, raw, errNumericField)
		}
		return v
	}

	satnum, perr := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if perr != nil {
		return set, fmt.Errorf("satellite number %q: %w", line1[2:7], errNumericField)
	}
	set.NoradID = satnum

	epochYear, perr := strconv.Atoi(line1[18:20])
	if perr != nil {
		return set, fmt.Errorf("epoch year %q: %w", line1[18:20], errNumericField)
	}
	epochDays := field("epoch day", line1[20:32], false)
	set.MeanMotionDot = field("mean motion dot", line1[33:43], true)
	set.MeanMotionDDot = field("mean motion ddot", line1[44:45]+"."+line1[45:50]+"e"+line1[50:52], true)
	set.BStar = field("bstar", line1[53:54]+"."+line1[54:59]+"e"+line1[59:61], true)

	set.Inclination = field("inclination", line2[8:16], true)
	set.RAAN = field("raan", line2[17:25], true)
	set.Eccentricity = field("eccentricity", "."+line2[26:33], false)
	set.ArgPerigee = field("argument of perigee", line2[34:42], true)
	set.MeanAnomaly = field("mean anomaly", line2[43:51], true)
	set.MeanMotion = field("mean motion", line2[52:63], true)
	if err != nil {
		return set, err
	}
	if set.MeanMotion <= 0 {
		return set, fmt.Errorf("mean motion %v: %w", set.MeanMotion, ErrDegenerateOrbit)
	}

	set.Epoch = elementEpoch(epochYear, epochDays)
	return set, nil
}

// elementEpoch converts a two-digit year and fractional day-of-year into a
// UTC time. Years below 57 are in the 2000s.
func elementEpoch(yy int, days float64) time.Time {
	year := 1900 + yy
	if yy < 57 {
		year = 2000 + yy
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((days - 1) * float64(24*time.Hour)))
}

// OpenCatalogFile opens an element-set file, transparently decompressing
// ".gz" and ".zst" files. The caller must close the returned reader.
func OpenCatalogFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip catalog: %w", err)
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open zstd catalog: %w", err)
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr.IOReadCloser(), f}}, nil
	default:
		return f, nil
	}
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type catalogSnapshot struct {
	sets     []model.OrbitalElementSet
	loadedAt time.Time
	source   string
}

// Catalog holds the current orbital element sets. A load replaces the whole
// sequence in one atomic swap, so readers see either the old catalog or the
// new one.
type Catalog struct {
	current atomic.Pointer[catalogSnapshot]

	log     logging.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// NewCatalog returns an empty catalog.
func NewCatalog(log logging.Logger, metrics MetricsRecorder) *Catalog {
	if log == nil {
		log = logging.Noop()
	}
	c := &Catalog{log: log, metrics: metricsOrNop(metrics), now: time.Now}
	c.current.Store(&catalogSnapshot{})
	return c
}

// Load reads the element-set file at path and swaps it in.
func (c *Catalog) Load(ctx context.Context, path string) (int, error) {
	rc, err := OpenCatalogFile(path)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return c.LoadReader(ctx, rc, path)
}

// LoadReader parses r and swaps the result in. Malformed groups are logged
// and skipped. A read error leaves the previous catalog in place.
func (c *Catalog) LoadReader(ctx context.Context, r io.Reader, source string) (int, error) {
	sets, errs, err := parseCatalog(r)
	if err != nil {
		return 0, err
	}
	for _, perr := range errs {
		c.log.Warn(ctx, "skipping malformed element set",
			logging.String("source", source),
			logging.String("error", perr.Error()),
		)
	}
	c.metrics.AddCatalogParseErrors(len(errs))

	c.current.Store(&catalogSnapshot{sets: sets, loadedAt: c.now(), source: source})
	c.metrics.SetCatalogSize(len(sets))
	c.log.Info(ctx, "orbit catalog loaded",
		logging.String("source", source),
		logging.Int("element_sets", len(sets)),
		logging.Int("skipped", len(errs)),
	)
	return len(sets), nil
}

// Replace swaps in an already-parsed set of elements.
func (c *Catalog) Replace(sets []model.OrbitalElementSet, source string) {
	cp := append([]model.OrbitalElementSet(nil), sets...)
	c.current.Store(&catalogSnapshot{sets: cp, loadedAt: c.now(), source: source})
	c.metrics.SetCatalogSize(len(cp))
}

// Entries returns the current element sets. The slice must not be modified.
func (c *Catalog) Entries() []model.OrbitalElementSet {
	return c.current.Load().sets
}

// Len returns the number of element sets currently loaded.
func (c *Catalog) Len() int {
	return len(c.current.Load().sets)
}

// LoadedAt returns when the current catalog was swapped in, or the zero time
// if nothing has been loaded.
func (c *Catalog) LoadedAt() time.Time {
	return c.current.Load().loadedAt
}

// Source names where the current catalog came from.
func (c *Catalog) Source() string {
	return c.current.Load().source
}
