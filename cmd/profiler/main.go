package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/meigma/datfs"
	"github.com/meigma/datfs/cache"
	"github.com/meigma/datfs/cache/disk"
	"github.com/meigma/datfs/internal/testutil"
)

const cacheNone = "none"

type config struct {
	mode        string
	files       int
	fileSize    int
	dirCount    int
	compression string
	pattern     string
	refill      int
	duration    time.Duration
	iterations  int
	pprofAddr   string
	cpuProfile  string
	memProfile  string
	traceFile   string
	cache       string
	cacheDir    string
	readRandom  bool
	tempDir     string
	keepTemp    bool
	randomSeed  int64
	workers     int
	format      string
}

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBytes []byte
	sinkLine  string
	sinkCount int
)

//nolint:gocognit,gocyclo // main function complexity is acceptable for CLI tool
func main() {
	cfg := parseFlags()

	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.pprofAddr)
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	dir, cleanup, err := setupTempDir(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if cleanup != nil {
		defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler
	}

	paths, err := buildArchive(dir, cfg)
	if err != nil {
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is intentional - cleanup is best-effort
	}

	var opts []datfs.Option
	opts = append(opts, datfs.WithRefillBufferSize(cfg.refill))
	if cfg.cache != cacheNone {
		c, cleanupCache, cacheErr := newCache(cfg, dir)
		if cacheErr != nil {
			log.Fatal(cacheErr)
		}
		defer cleanupCache() //nolint:errcheck // cleanup errors are non-fatal in profiler
		opts = append(opts, datfs.WithCache(c))
	}
	v := datfs.New(opts...)
	defer v.Close() //nolint:errcheck // close errors are non-fatal in profiler
	if err := v.Mount(filepath.Join(dir, archiveName)); err != nil {
		log.Fatal(err)
	}

	if cfg.cpuProfile != "" {
		cpuFile, cpuErr := os.Create(cfg.cpuProfile)
		if cpuErr != nil {
			log.Fatal(cpuErr)
		}
		if cpuErr = pprof.StartCPUProfile(cpuFile); cpuErr != nil {
			log.Fatal(cpuErr)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}

	if cfg.traceFile != "" {
		traceFile, traceErr := os.Create(cfg.traceFile)
		if traceErr != nil {
			log.Fatal(traceErr)
		}
		if traceErr = trace.Start(traceFile); traceErr != nil {
			log.Fatal(traceErr)
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	stats, err := runProfile(cfg, v, paths, dir)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.memProfile != "" {
		runtime.GC()
		f, err := os.Create(cfg.memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
		_ = f.Close()
	}

	if err := printStats(os.Stdout, cfg, stats); err != nil {
		log.Fatal(err)
	}
}

type profileStats struct {
	Mode       string        `yaml:"mode"`
	Ops        int           `yaml:"ops"`
	Bytes      int64         `yaml:"bytes"`
	Elapsed    time.Duration `yaml:"elapsed"`
	Throughput float64       `yaml:"throughput_mb_s"`
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func printStats(w io.Writer, cfg config, stats profileStats) error {
	stats.Mode = cfg.mode
	stats.Throughput = float64(stats.Bytes) / (1024 * 1024) / stats.Elapsed.Seconds()
	switch cfg.format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(stats); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		_, err := fmt.Fprintf(w, "mode=%s ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
			stats.Mode, stats.Ops, stats.Bytes, stats.Elapsed, stats.Throughput)
		return err
	default:
		return fmt.Errorf("unknown format: %s", cfg.format)
	}
}

//nolint:gocognit,gocyclo,gocritic // complexity is inherent to multi-mode profiler dispatch; hugeParam acceptable for profiler
func runProfile(cfg config, v *datfs.VFS, paths []string, dir string) (profileStats, error) {
	start := time.Now()
	ops := 0
	var byteCount int64

	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}
	rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional for reproducible benchmarks

	switch cfg.mode {
	case "readfile":
		for shouldContinue() {
			path := pickPath(paths, ops, rng, cfg.readRandom)
			content, err := v.ReadFile(path)
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = content
			byteCount += int64(len(content))
			ops++
		}

	case "stream":
		for shouldContinue() {
			path := pickPath(paths, ops, rng, cfg.readRandom)
			n, err := streamBytes(v, path)
			if err != nil {
				return profileStats{}, err
			}
			byteCount += n
			ops++
		}

	case "seek":
		for shouldContinue() {
			path := pickPath(paths, ops, rng, cfg.readRandom)
			n, err := seekRandom(v, path, rng)
			if err != nil {
				return profileStats{}, err
			}
			byteCount += n
			ops++
		}

	case "lines":
		for shouldContinue() {
			path := pickPath(paths, ops, rng, cfg.readRandom)
			n, err := readLines(v, path)
			if err != nil {
				return profileStats{}, err
			}
			byteCount += n
			ops++
		}

	case "list":
		for shouldContinue() {
			names, err := v.FileNameList(fmt.Sprintf("dir%02d/*.dat", ops%max(cfg.dirCount, 1)))
			if err != nil {
				return profileStats{}, err
			}
			if len(names) == 0 {
				return profileStats{}, errors.New("expected at least one listed name")
			}
			sinkCount = len(names)
			ops++
		}

	case "extract":
		for shouldContinue() {
			dest := filepath.Join(dir, "extract", fmt.Sprintf("run%05d", ops))
			n, err := v.Extract(context.Background(), "*", dest, datfs.CopyWithWorkers(cfg.workers))
			if err != nil {
				return profileStats{}, err
			}
			if err := os.RemoveAll(dest); err != nil {
				return profileStats{}, err
			}
			byteCount += int64(n) * int64(cfg.fileSize)
			ops++
		}

	default:
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	return profileStats{
		Ops:     ops,
		Bytes:   byteCount,
		Elapsed: time.Since(start),
	}, nil
}

// streamBytes reads path one byte at a time.
func streamBytes(v *datfs.VFS, path string) (int64, error) {
	f, err := v.Open(path, "rb")
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var n int64
	for {
		if _, err := f.ReadByte(); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		n++
	}
}

// seekRandom performs a handful of random seeks, reading a small block after
// each one.
func seekRandom(v *datfs.VFS, path string, rng *rand.Rand) (int64, error) {
	f, err := v.Open(path, "rb")
	if err != nil {
		return 0, err
	}
	defer f.Close()
	size, err := f.Size()
	if err != nil || size == 0 {
		return 0, err
	}
	buf := make([]byte, 64)
	var total int64
	for range 8 {
		if _, err := f.Seek(rng.Int63n(size), io.SeekStart); err != nil {
			return total, err
		}
		n, err := f.Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return total, err
		}
		total += int64(n)
	}
	return total, nil
}

// readLines reads path in text mode, line by line.
func readLines(v *datfs.VFS, path string) (int64, error) {
	f, err := v.Open(path, "rt")
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var n int64
	for {
		line, err := f.ReadLine(256)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		sinkLine = line
		n += int64(len(line))
	}
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.mode, "mode", "readfile", "mode: readfile, stream, seek, lines, list, extract")
	flag.IntVar(&cfg.files, "files", 512, "number of archive entries")
	flag.IntVar(&cfg.fileSize, "file-size", 16<<10, "entry size in bytes")
	flag.IntVar(&cfg.dirCount, "dir-count", 16, "number of directories")
	flag.StringVar(&cfg.compression, "compression", "zlib", "compression: none or zlib")
	flag.StringVar(&cfg.pattern, "pattern", "compressible", "pattern: compressible, text or random")
	flag.IntVar(&cfg.refill, "refill", defaultRefill, "inflater refill buffer size in bytes")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	flag.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	flag.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	flag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flag.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	flag.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	flag.StringVar(&cfg.cache, "cache", cacheNone, "cache: memory, disk, none")
	flag.StringVar(&cfg.cacheDir, "cache-dir", "", "cache directory (disk cache only)")
	flag.BoolVar(&cfg.readRandom, "read-random", true, "randomize path selection")
	flag.StringVar(&cfg.tempDir, "temp-dir", "", "directory to use for dataset")
	flag.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	flag.Int64Var(&cfg.randomSeed, "seed", 1, "random seed")
	flag.IntVar(&cfg.workers, "workers", 0, "extract workers (0 = auto, <0 = serial)")
	flag.StringVar(&cfg.format, "format", "text", "output format: text or yaml")
	flag.Parse()
	return cfg
}

const (
	archiveName   = "profile.dat"
	defaultRefill = 1 << 10
)

func pickPath(paths []string, idx int, rng *rand.Rand, random bool) string {
	if random {
		return paths[rng.Intn(len(paths))]
	}
	return paths[idx%len(paths)]
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func setupTempDir(cfg config) (string, func() error, error) {
	if cfg.tempDir != "" {
		return cfg.tempDir, nil, os.MkdirAll(cfg.tempDir, 0o755) //nolint:gosec // 0o755 is intentional for profiler temp dirs
	}
	dir, err := os.MkdirTemp("", "datfs-profiler-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() error {
		if cfg.keepTemp {
			return nil
		}
		return os.RemoveAll(dir)
	}
	return dir, cleanup, nil
}

// buildArchive writes the profiling archive into dir and returns the entry
// paths.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func buildArchive(dir string, cfg config) ([]string, error) {
	compressed, err := parseCompression(cfg.compression)
	if err != nil {
		return nil, err
	}
	dirCount := max(cfg.dirCount, 1)
	rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional use for reproducible benchmarks

	entries := make([]testutil.ArchiveEntry, 0, cfg.files)
	paths := make([]string, 0, cfg.files)
	for i := range cfg.files {
		path := fmt.Sprintf(`DIR%02d\FILE%05d.DAT`, i%dirCount, i)
		content := make([]byte, cfg.fileSize)
		switch cfg.pattern {
		case "random":
			if _, err := rng.Read(content); err != nil {
				return nil, err
			}
		case "text":
			for j := range content {
				switch {
				case j%80 == 78:
					content[j] = '\r'
				case j%80 == 79:
					content[j] = '\n'
				default:
					content[j] = byte('a' + (i+j)%26)
				}
			}
		default:
			fillByte := byte('a' + (i % 26))
			for j := range content {
				content[j] = fillByte
			}
			if len(content) > 0 {
				content[0] = byte(i)
			}
		}
		entries = append(entries, testutil.ArchiveEntry{Path: path, Data: content, Compressed: compressed})
		paths = append(paths, fmt.Sprintf("dir%02d/file%05d.dat", i%dirCount, i))
	}

	f, err := os.Create(filepath.Join(dir, archiveName))
	if err != nil {
		return nil, err
	}
	if err := testutil.EncodeArchive(f, nil, entries); err != nil {
		_ = f.Close()
		return nil, err
	}
	return paths, f.Close()
}

func parseCompression(name string) (bool, error) {
	switch name {
	case "none":
		return false, nil
	case "zlib":
		return true, nil
	default:
		return false, fmt.Errorf("unknown compression: %s", name)
	}
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func newCache(cfg config, rootDir string) (cache.Cache, func() error, error) {
	switch cfg.cache {
	case "memory":
		return testutil.NewMockCache(), func() error { return nil }, nil
	case "disk":
		cacheDir := cfg.cacheDir
		autoDir := false
		if cacheDir == "" {
			base := filepath.Join(rootDir, "cache")
			if err := os.MkdirAll(base, 0o755); err != nil { //nolint:gosec // 0o755 is intentional for profiler
				return nil, nil, err
			}
			dir, err := os.MkdirTemp(base, "run-*")
			if err != nil {
				return nil, nil, err
			}
			cacheDir = dir
			autoDir = true
		}
		c, err := disk.New(cacheDir)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() error {
			if autoDir {
				return os.RemoveAll(cacheDir)
			}
			return nil
		}
		return c, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache: %s", cfg.cache)
	}
}
