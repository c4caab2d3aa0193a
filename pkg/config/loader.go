// Package config implements the descriptor-directory loader: it reads
// every network descriptor file in a directory once (or on every
// fsnotify event, if a Watcher is run) and folds them into a
// backend.Backend plus the per-network listen-address maps the
// listener fleet binds against.
package config

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cuemby/burrow/pkg/backend"
	"github.com/cuemby/burrow/pkg/log"
)

// DefaultPIDFileName is the descriptor-directory entry the loader
// ignores, matching the container runtime's own PID file convention.
const DefaultPIDFileName = "burrow.pid"

// Snapshot is the fully assembled result of one load: the query engine
// plus the addresses each network wants bound.
type Snapshot struct {
	Backend  *backend.Backend
	ListenV4 map[backend.NetworkName][]net.IP
	ListenV6 map[backend.NetworkName][]net.IP
}

// Load reads every descriptor file in dir except pidFileName and
// assembles a Snapshot. Files are processed in lexical order so that
// identical directory contents produce a structurally identical
// Backend on every host and every run (spec.md §8's determinism
// property; spec.md §4.1 only requires "deterministic per run").
//
// A descriptor that disappears between enumeration and open is logged
// as a warning and skipped, not treated as fatal (spec.md §4.1/§7). Any
// other malformed descriptor is a fatal, non-nil error.
func Load(dir, pidFileName string) (*Snapshot, error) {
	if pidFileName == "" {
		pidFileName = DefaultPIDFileName
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name() == pidFileName {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	b := backend.NewBuilder()
	listenV4 := make(map[backend.NetworkName][]net.IP)
	listenV6 := make(map[backend.NetworkName][]net.IP)

	for _, name := range names {
		path := filepath.Join(dir, name)
		if !utf8.ValidString(name) {
			return nil, fmt.Errorf("descriptor file name %q is not valid UTF-8", name)
		}

		network := backend.NetworkName(name)
		if err := parseFile(path, network, b, listenV4, listenV6); err != nil {
			if os.IsNotExist(err) {
				log.WithComponent("config").Warn().
					Str("file", name).
					Msg("descriptor vanished between enumeration and open, skipping")
				continue
			}
			return nil, err
		}
	}

	return &Snapshot{
		Backend:  b.Build(),
		ListenV4: listenV4,
		ListenV6: listenV6,
	}, nil
}

// parseFile parses one descriptor file into b, listenV4, and listenV6.
func parseFile(path string, network backend.NetworkName, b *backend.Builder, listenV4, listenV6 map[backend.NetworkName][]net.IP) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	sawBindLine := false

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !sawBindLine {
			sawBindLine = true
			bindIPs, err := parseBindLine(line)
			if err != nil {
				return fmt.Errorf("%s:%d: %w", path, lineNo, err)
			}
			if len(bindIPs) == 0 {
				return fmt.Errorf("%s:%d: descriptor has zero bind IPs", path, lineNo)
			}
			for _, ip := range bindIPs {
				if ip.To4() != nil {
					listenV4[network] = append(listenV4[network], ip)
				} else {
					listenV6[network] = append(listenV6[network], ip)
				}
			}
			continue
		}

		entry, err := parseContainerLine(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		b.AddContainer(network, entry)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !sawBindLine {
		return fmt.Errorf("%s: descriptor has zero bind IPs", path)
	}

	return nil
}

func parseBindLine(line string) ([]net.IP, error) {
	var ips []net.IP
	for _, field := range strings.Split(line, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		ip := net.ParseIP(field)
		if ip == nil {
			return nil, fmt.Errorf("invalid bind IP %q", field)
		}
		ips = append(ips, ip)
	}
	return ips, nil
}

// parseContainerLine parses one container descriptor line:
// "<container_id> <v4-list> <v6-list> <name-list> [<dns-server-list>]".
//
// Fields are split on a single literal space, not collapsed runs of
// whitespace: the v4-list or v6-list field is legitimately empty when a
// container has no address of that family on this network, and that
// can only be represented as two adjacent space characters.
func parseContainerLine(line string) (backend.ContainerEntry, error) {
	fields := strings.Split(line, " ")
	if len(fields) < 4 {
		return backend.ContainerEntry{}, fmt.Errorf("container line has %d fields, need at least 4", len(fields))
	}

	id := strings.ToLower(fields[0])

	v4, err := parseFamilyIPList(fields[1], true)
	if err != nil {
		return backend.ContainerEntry{}, fmt.Errorf("invalid v4 address list: %w", err)
	}
	v6, err := parseFamilyIPList(fields[2], false)
	if err != nil {
		return backend.ContainerEntry{}, fmt.Errorf("invalid v6 address list: %w", err)
	}

	var names []string
	for _, n := range strings.Split(fields[3], ",") {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return backend.ContainerEntry{}, fmt.Errorf("container line has zero names")
	}

	var upstream []net.IP
	if len(fields) >= 5 && fields[4] != "" {
		upstream, err = parseIPList(fields[4])
		if err != nil {
			return backend.ContainerEntry{}, fmt.Errorf("invalid upstream DNS server list: %w", err)
		}
	}

	return backend.ContainerEntry{
		ID:       id,
		IPv4:     v4,
		IPv6:     v6,
		Names:    names,
		Upstream: upstream,
	}, nil
}

// parseIPList parses a comma-separated, family-agnostic IP list. Used
// for the upstream-server field, which legitimately mixes v4 and v6
// literals (spec.md §4.1); the bind-IP line goes through parseBindLine.
func parseIPList(field string) ([]net.IP, error) {
	if field == "" {
		return nil, nil
	}
	var out []net.IP
	for _, s := range strings.Split(field, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP %q", s)
		}
		out = append(out, ip)
	}
	return out, nil
}

// parseFamilyIPList parses a comma-separated IP list for a single
// family column (the container line's v4-list or v6-list field) and
// rejects a literal of the wrong family, matching the original Rust
// loader's typed Ipv4Addr/Ipv6Addr parse (original_source/src/config/
// mod.rs): a v6 literal in the v4 column, or vice versa, is a parse
// error rather than being silently filed under the wrong family, which
// would otherwise break the v4-then-v6 ordering invariant (spec.md §3).
func parseFamilyIPList(field string, wantV4 bool) ([]net.IP, error) {
	if field == "" {
		return nil, nil
	}
	var out []net.IP
	for _, s := range strings.Split(field, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP %q", s)
		}
		isV4 := ip.To4() != nil
		if isV4 != wantV4 {
			want, got := "IPv6", "IPv4"
			if wantV4 {
				want, got = "IPv4", "IPv6"
			}
			return nil, fmt.Errorf("%q is an %s address, expected %s", s, got, want)
		}
		out = append(out, ip)
	}
	return out, nil
}
