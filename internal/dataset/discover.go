package dataset

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoShards is returned when a root holds no shard archives.
var ErrNoShards = errors.New("dataset: no shards found")

var shardRegexp = regexp.MustCompile(`^shard-[0-9]{6,}\.tar$`)

// DiscoverShards lists the shard archives beneath root, sorted by path.
// Dot-directories are skipped. An empty result is ErrNoShards.
func DiscoverShards(root string) ([]string, error) {
	var shards []string
	walk := func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir() && path != root && strings.HasPrefix(d.Name(), "."):
			return fs.SkipDir
		case !d.IsDir() && shardRegexp.MatchString(d.Name()):
			shards = append(shards, path)
		}
		return nil
	}
	if err := filepath.WalkDir(root, walk); err != nil {
		return nil, errors.Wrapf(err, "dataset: scan %s", root)
	}
	if len(shards) == 0 {
		return nil, errors.Wrap(ErrNoShards, root)
	}
	sort.Strings(shards)
	return shards, nil
}
