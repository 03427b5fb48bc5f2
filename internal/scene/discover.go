package scene

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ListFile is the optional scene list in a working directory
const ListFile = "scene_list.txt"

const headerSuffix = "_sr_band1.hdr"

// Discover returns the scenes of dir ordered by acquisition date. Names come
// from ListFile when present, otherwise from the L*_sr_band1.hdr files.
// Repeated names are dropped and scenes sharing a date keep their listed order.
func Discover(dir string) ([]ID, error) {
	names, err := readList(filepath.Join(dir, ListFile))
	if errors.Is(err, fs.ErrNotExist) {
		names, err = globHeaders(dir)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(names))
	ids := make([]ID, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		id, err := ParseID(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoScenes)
	}

	slices.SortStableFunc(ids, func(a, b ID) int { return a.Date - b.Date })
	return ids, nil
}

func readList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		names = append(names, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return names, nil
}

func globHeaders(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "L*"+headerSuffix))
	if err != nil {
		return nil, err
	}
	slices.Sort(matches)
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = strings.TrimSuffix(filepath.Base(m), headerSuffix)
	}
	return names, nil
}

// WriteList records ids in dir's ListFile, one name per line
func WriteList(dir string, ids []ID) error {
	var sb strings.Builder
	for _, id := range ids {
		sb.WriteString(id.Name)
		sb.WriteByte('\n')
	}
	return os.WriteFile(filepath.Join(dir, ListFile), []byte(sb.String()), 0o644)
}
