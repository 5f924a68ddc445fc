package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadCluster parses cluster.conf: lines of the form `<db>.<n>=host:port`
// naming the ordered peer list for each clustered database. The index n
// is only used to keep the file human-editable; the returned order is
// sorted by n, not file order.
func LoadCluster(path string) (map[string][]string, error) {
	entries, err := parseKV(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]string{}, nil
		}
		return nil, err
	}

	type indexed struct {
		n    int
		peer string
	}
	byDB := make(map[string][]indexed)
	for key, value := range entries {
		db, idxStr, ok := strings.Cut(key, ".")
		if !ok {
			return nil, fmt.Errorf("config: %s: key %q is missing a <db>.<n> separator", path, key)
		}
		n, err := strconv.Atoi(idxStr)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %q: peer index must be an integer", path, key)
		}
		byDB[db] = append(byDB[db], indexed{n: n, peer: value})
	}

	out := make(map[string][]string, len(byDB))
	for db, peers := range byDB {
		for i := 0; i < len(peers); i++ {
			for j := i + 1; j < len(peers); j++ {
				if peers[j].n < peers[i].n {
					peers[i], peers[j] = peers[j], peers[i]
				}
			}
		}
		ordered := make([]string, len(peers))
		for i, p := range peers {
			ordered[i] = p.peer
		}
		out[db] = ordered
	}
	return out, nil
}
