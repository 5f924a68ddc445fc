package config

import (
	"fmt"
	"strconv"
	"strings"
)

// DBEntry is one block from system/dblist: the on-disk layout and
// enabled/disabled state of a single database known to this server.
type DBEntry struct {
	Name       string
	RootDir    string
	Partitions uint16
	Enable     bool
}

// LoadDBList parses system/dblist, grouping `<label>.<field>=value` lines
// by their label into one DBEntry per database.
func LoadDBList(path string) (map[string]*DBEntry, error) {
	entries, err := parseKV(path)
	if err != nil {
		return nil, err
	}

	labels := make(map[string]*DBEntry)
	for key, value := range entries {
		label, field, ok := strings.Cut(key, ".")
		if !ok {
			return nil, fmt.Errorf("config: %s: key %q is missing a <label>.<field> separator", path, key)
		}
		entry, ok := labels[label]
		if !ok {
			entry = &DBEntry{Partitions: 1}
			labels[label] = entry
		}
		if err := applyDBField(entry, field, value); err != nil {
			return nil, fmt.Errorf("config: %s: %s.%s: %w", path, label, field, err)
		}
	}

	for label, entry := range labels {
		if entry.Name == "" {
			return nil, fmt.Errorf("config: %s: block %q is missing a name", path, label)
		}
	}
	return labels, nil
}

func applyDBField(entry *DBEntry, field, value string) error {
	switch field {
	case "name":
		entry.Name = value
	case "rootdir":
		entry.RootDir = value
	case "partitions":
		n, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return err
		}
		entry.Partitions = uint16(n)
	case "enable":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		entry.Enable = b
	default:
		return fmt.Errorf("unrecognized field %q", field)
	}
	return nil
}
