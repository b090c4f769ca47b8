// Package profiling captures pprof profiles around a pool workload
package profiling

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"sync"
	"time"
)

// ProfileType represents different types of profiles
type ProfileType string

const (
	CPUProfile       ProfileType = "cpu"
	MemProfile       ProfileType = "heap"
	AllocProfile     ProfileType = "allocs"
	BlockProfile     ProfileType = "block"
	MutexProfile     ProfileType = "mutex"
	GoroutineProfile ProfileType = "goroutine"
)

var knownTypes = map[ProfileType]bool{
	CPUProfile:       true,
	MemProfile:       true,
	AllocProfile:     true,
	BlockProfile:     true,
	MutexProfile:     true,
	GoroutineProfile: true,
}

// ParseTypes parses a comma separated list such as "cpu,mutex"
func ParseTypes(s string) ([]ProfileType, error) {
	var types []ProfileType
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		t := ProfileType(name)
		if !knownTypes[t] {
			return nil, fmt.Errorf("unknown profile type %q", name)
		}
		types = append(types, t)
	}
	return types, nil
}

// Profiler writes one file per profile type into a directory. Sampling
// profiles (cpu, block, mutex) run from Start to Stop; snapshot profiles
// are taken at Stop.
type Profiler struct {
	dir    string
	prefix string

	mu      sync.Mutex
	cpuFile *os.File
	active  []ProfileType
	started time.Time
}

// NewProfiler creates a profiler writing to dir
func NewProfiler(dir, prefix string) *Profiler {
	return &Profiler{dir: dir, prefix: prefix}
}

// Start begins profiling the given types
func (p *Profiler) Start(types ...ProfileType) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.active) > 0 {
		return fmt.Errorf("profiling is already running")
	}
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return fmt.Errorf("could not create profile directory: %w", err)
	}

	for _, t := range types {
		switch t {
		case CPUProfile:
			f, err := os.Create(p.path(t))
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %w", err)
			}
			if err := pprof.StartCPUProfile(f); err != nil {
				f.Close()
				return fmt.Errorf("could not start CPU profile: %w", err)
			}
			p.cpuFile = f
		case BlockProfile:
			runtime.SetBlockProfileRate(1)
		case MutexProfile:
			runtime.SetMutexProfileFraction(1)
		}
	}
	p.active = types
	p.started = time.Now()
	return nil
}

// Stop ends profiling and returns the files written
func (p *Profiler) Stop() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var files []string
	var firstErr error
	for _, t := range p.active {
		var err error
		switch t {
		case CPUProfile:
			pprof.StopCPUProfile()
			err = p.cpuFile.Close()
			p.cpuFile = nil
		case BlockProfile:
			err = p.writeLookup(t)
			runtime.SetBlockProfileRate(0)
		case MutexProfile:
			err = p.writeLookup(t)
			runtime.SetMutexProfileFraction(0)
		case MemProfile:
			runtime.GC()
			err = p.writeLookup(t)
		default:
			err = p.writeLookup(t)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		files = append(files, p.path(t))
	}
	p.active = nil
	return files, firstErr
}

// Elapsed reports how long the current or last session ran
func (p *Profiler) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		return 0
	}
	return time.Since(p.started)
}

func (p *Profiler) writeLookup(t ProfileType) error {
	f, err := os.Create(p.path(t))
	if err != nil {
		return fmt.Errorf("could not create %s profile: %w", t, err)
	}
	defer f.Close()

	if err := pprof.Lookup(string(t)).WriteTo(f, 0); err != nil {
		return fmt.Errorf("could not write %s profile: %w", t, err)
	}
	return nil
}

func (p *Profiler) path(t ProfileType) string {
	return filepath.Join(p.dir, fmt.Sprintf("%s_%s.prof", p.prefix, t))
}
