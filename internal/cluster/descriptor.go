// Package cluster confirms, at boot, that every peer configured for a
// clustered database agrees on that database's peer list. It performs no
// replication or membership change — only the one-time shape confirmation
// spec.md calls the cluster handshake.
package cluster

import (
	"fmt"
	"sort"
	"strings"
)

// Descriptor maps a database name to its configured peer addresses
// (host:port of each peer's manager port), as loaded from cluster.conf.
type Descriptor map[string][]string

// encode renders a Descriptor the way CLUSTER_INFO reports it on the
// wire: one result entry per database, "name=peer1,peer2,...".
func encode(d Descriptor) [][]byte {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([][]byte, 0, len(names))
	for _, name := range names {
		out = append(out, []byte(name+"="+strings.Join(d[name], ",")))
	}
	return out
}

// decode parses CLUSTER_INFO's result entries back into a Descriptor.
func decode(entries [][]byte) (Descriptor, error) {
	d := make(Descriptor, len(entries))
	for _, entry := range entries {
		name, peers, ok := strings.Cut(string(entry), "=")
		if !ok {
			return nil, fmt.Errorf("cluster: malformed CLUSTER_INFO entry %q", entry)
		}
		if peers == "" {
			d[name] = nil
			continue
		}
		d[name] = strings.Split(peers, ",")
	}
	return d, nil
}

// sameShape reports whether a and b list the same peers for a database,
// ignoring order, and rejects either side if it contains a duplicate.
func sameShape(a, b []string) bool {
	if hasDuplicate(a) || hasDuplicate(b) {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func hasDuplicate(peers []string) bool {
	seen := make(map[string]struct{}, len(peers))
	for _, p := range peers {
		if _, ok := seen[p]; ok {
			return true
		}
		seen[p] = struct{}{}
	}
	return false
}
