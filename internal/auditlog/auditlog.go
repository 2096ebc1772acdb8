package auditlog

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"alpha-engine/internal/types"
)

// Log persists the durable subset of engine state: the council decision
// history (JSONL, one file per day) and the source profile set (single JSON
// snapshot). Signal queue and in-flight proposals are deliberately not
// persisted; they are discarded on restart.
type Log struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) *Log {
	if dir == "" {
		dir = "data"
	}
	if v := os.Getenv("ALPHA_DATA_DIR"); v != "" {
		dir = v
	}
	return &Log{dir: dir}
}

func (l *Log) decisionsPath(t time.Time) string {
	return filepath.Join(l.dir, "decisions", t.UTC().Format("2006-01-02")+".jsonl")
}

func (l *Log) profilesPath() string {
	return filepath.Join(l.dir, "profiles.json")
}

// AppendDecision appends one terminal decision to today's JSONL file.
func (l *Log) AppendDecision(d types.CouncilDecision) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.decisionsPath(time.Now())
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, _ := json.Marshal(d)
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// LoadDecisions reads every persisted decision back, oldest first. Corrupt
// lines are skipped rather than failing the whole load.
func (l *Log) LoadDecisions() ([]types.CouncilDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	root := filepath.Join(l.dir, "decisions")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".jsonl" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []types.CouncilDecision
	for _, name := range names {
		f, err := os.Open(filepath.Join(root, name))
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			var d types.CouncilDecision
			if err := json.Unmarshal(sc.Bytes(), &d); err != nil {
				continue
			}
			out = append(out, d)
		}
		f.Close()
	}
	return out, nil
}

// SaveProfiles writes the full profile set atomically.
func (l *Log) SaveProfiles(profiles []types.SourceProfile) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.profilesPath() + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.profilesPath())
}

// LoadProfiles reads the persisted profile set; a missing file is an empty
// set, not an error.
func (l *Log) LoadProfiles() ([]types.SourceProfile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, err := os.ReadFile(l.profilesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []types.SourceProfile
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CompressOlder gzips decision files older than the retention window.
func (l *Log) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	root := filepath.Join(l.dir, "decisions")
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, e := os.Stat(gz); e == nil {
			_ = os.Remove(p)
			return nil
		}
		in, e := os.Open(p)
		if e != nil {
			return nil
		}
		defer in.Close()
		out, e := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if e != nil {
			return nil
		}
		gw := gzip.NewWriter(out)
		if _, e := io.Copy(gw, in); e == nil {
			_ = gw.Close()
			_ = out.Close()
			_ = os.Remove(p)
		} else {
			_ = gw.Close()
			_ = out.Close()
		}
		return nil
	})
}
