// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-answer/internal/util"
)

// =============================================================================
// COST STORAGE
// =============================================================================

const sessionExt = ".json"

// CostStorage keeps one JSON file per session in a directory. Files whose
// names are not session IDs are left alone.
type CostStorage struct {
	dir string
}

// storedSession is one session file found on disk.
type storedSession struct {
	id    string
	start time.Time
	size  int64
}

// NewCostStorage opens dir, creating it when missing. An empty dir means
// ~/.rigrun-answer/usage.
func NewCostStorage(dir string) (*CostStorage, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating home directory: %w", err)
		}
		dir = filepath.Join(home, ".rigrun-answer", "usage")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating usage directory: %w", err)
	}
	return &CostStorage{dir: dir}, nil
}

// Dir returns the storage directory.
func (cs *CostStorage) Dir() string {
	return cs.dir
}

func (cs *CostStorage) path(id string) string {
	return filepath.Join(cs.dir, id+sessionExt)
}

// sessions lists the session files in start order.
func (cs *CostStorage) sessions() ([]storedSession, error) {
	entries, err := os.ReadDir(cs.dir)
	if err != nil {
		return nil, err
	}

	var found []storedSession
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, sessionExt) {
			continue
		}
		id := strings.TrimSuffix(name, sessionExt)
		start, ok := sessionTime(id)
		if !ok {
			continue
		}
		s := storedSession{id: id, start: start}
		if info, err := entry.Info(); err == nil {
			s.size = info.Size()
		}
		found = append(found, s)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].id < found[j].id })
	return found, nil
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Save writes session, replacing any earlier snapshot of it. A nil
// session is a no-op.
func (cs *CostStorage) Save(session *SessionCost) error {
	if session == nil {
		return nil
	}
	if _, ok := sessionTime(session.ID); !ok {
		return fmt.Errorf("invalid session id %q", session.ID)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	return util.WriteFileAtomic(cs.path(session.ID), data, 0600)
}

// Load reads one session.
func (cs *CostStorage) Load(id string) (*SessionCost, error) {
	data, err := os.ReadFile(cs.path(id))
	if err != nil {
		return nil, err
	}

	var session SessionCost
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &session, nil
}

// List returns the IDs of sessions started within [from, to], oldest first.
func (cs *CostStorage) List(from, to time.Time) ([]string, error) {
	found, err := cs.sessions()
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, s := range found {
		if s.start.Before(from) || s.start.After(to) {
			continue
		}
		ids = append(ids, s.id)
	}
	return ids, nil
}

// DeleteBefore removes sessions started before cutoff and reports how many
// were removed.
func (cs *CostStorage) DeleteBefore(cutoff time.Time) (int, error) {
	found, err := cs.sessions()
	if err != nil {
		return 0, err
	}

	var (
		removed int
		errs    []error
	)
	for _, s := range found {
		if !s.start.Before(cutoff) {
			break
		}
		if err := os.Remove(cs.path(s.id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Size returns the bytes used by stored sessions.
func (cs *CostStorage) Size() (int64, error) {
	found, err := cs.sessions()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, s := range found {
		total += s.size
	}
	return total, nil
}

// Count returns the number of stored sessions.
func (cs *CostStorage) Count() (int, error) {
	found, err := cs.sessions()
	return len(found), err
}

// sessionTime parses the local start time encoded in a session ID.
func sessionTime(id string) (time.Time, bool) {
	parts := strings.SplitN(id, "-", 3)
	if len(parts) < 2 {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation("20060102-150405", parts[0]+"-"+parts[1], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
