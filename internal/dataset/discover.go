package dataset

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var shardRegexp = regexp.MustCompile(`^shard-([0-9]{6,})\.tar$`)

type shardFile struct {
	index int
	path  string
}

// DiscoverShards returns the shard TAR files beneath root ordered by shard
// index. Hidden directories are not descended into, and two files carrying
// the same index are an error since the loader would read the split twice.
func DiscoverShards(root string) ([]string, error) {
	var found []shardFile
	seen := map[int]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		m := shardRegexp.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			return errors.Wrapf(err, "shard index in %s", path)
		}
		if prev, dup := seen[idx]; dup {
			return errors.Errorf("shard index %d found at %s and %s", idx, prev, path)
		}
		seen[idx] = path
		found = append(found, shardFile{index: idx, path: path})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "discover shards")
	}
	sort.Slice(found, func(i, j int) bool { return found[i].index < found[j].index })
	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}
