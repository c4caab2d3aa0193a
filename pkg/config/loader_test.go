package config

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/backend"
)

func writeDescriptor(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestLoadSingleNetwork(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "podman", "10.88.0.1\n"+
		"condescendingnash 10.88.0.2  c1,condescendingnash\n")

	snap, err := Load(dir, DefaultPIDFileName)
	require.NoError(t, err)

	require.Len(t, snap.ListenV4["podman"], 1)
	assert.True(t, snap.ListenV4["podman"][0].Equal(net.ParseIP("10.88.0.1")))

	result := snap.Backend.Lookup(net.ParseIP("10.88.0.2"), "condescendingnash")
	assert.Equal(t, backend.Success, result.Kind)
}

func TestLoadSkipsPIDFile(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "podman", "10.88.0.1\nc1 10.88.0.2  c1\n")
	writeDescriptor(t, dir, DefaultPIDFileName, "not a descriptor at all")

	_, err := Load(dir, DefaultPIDFileName)
	assert.NoError(t, err, "pid file should be skipped, not parsed")
}

func TestLoadZeroBindIPsIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "podman", ",\nc1 10.88.0.2  c1\n")

	_, err := Load(dir, DefaultPIDFileName)
	assert.Error(t, err)
}

func TestLoadMalformedLineIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "podman", "10.88.0.1\nc1 10.88.0.2\n")

	_, err := Load(dir, DefaultPIDFileName)
	assert.Error(t, err, "too few fields on a container line")
}

func TestLoadInvalidIPIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "podman", "10.88.0.1\nc1 not-an-ip  c1\n")

	_, err := Load(dir, DefaultPIDFileName)
	assert.Error(t, err)
}

func TestLoadZeroNamesIsFatal(t *testing.T) {
	dir := t.TempDir()
	// Empty v6-list and empty name-list, followed by an upstream field so
	// the trailing empty field isn't trimmed away as whitespace.
	writeDescriptor(t, dir, "podman", "10.88.0.1\nc1 10.88.0.2   1.1.1.1\n")

	_, err := Load(dir, DefaultPIDFileName)
	assert.Error(t, err, "zero names on a container line")
}

func TestLoadFamilyMismatchIsFatal(t *testing.T) {
	dir := t.TempDir()
	// fdfd::2 placed in the v4-list column.
	writeDescriptor(t, dir, "podman", "10.88.0.1\nc1 fdfd::2  c1\n")

	_, err := Load(dir, DefaultPIDFileName)
	assert.Error(t, err, "IPv6 literal in the v4 column must be rejected")
}

func TestLoadUpstreamServers(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "podman", "10.88.0.1\n"+
		"withupstream 10.88.0.5  withupstream 3.3.3.3,1.1.1.1,::1\n"+
		"noupstream 10.88.0.3  noupstream\n")

	snap, err := Load(dir, DefaultPIDFileName)
	require.NoError(t, err)

	servers, ok := snap.Backend.GetUpstream(net.ParseIP("10.88.0.5"))
	require.True(t, ok)
	assert.Len(t, servers, 3)

	servers, ok = snap.Backend.GetUpstream(net.ParseIP("10.88.0.3"))
	require.True(t, ok)
	assert.Empty(t, servers)
}

func TestLoadMultipleNetworksDeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "zzz-network", "10.1.0.1\nc1 10.1.0.2  c1\n")
	writeDescriptor(t, dir, "aaa-network", "10.2.0.1\nc2 10.2.0.2  c2\n")

	snap1, err := Load(dir, DefaultPIDFileName)
	require.NoError(t, err)
	snap2, err := Load(dir, DefaultPIDFileName)
	require.NoError(t, err)

	r1 := snap1.Backend.Lookup(net.ParseIP("10.1.0.2"), "c1")
	r2 := snap2.Backend.Lookup(net.ParseIP("10.1.0.2"), "c1")
	assert.Equal(t, r1.Kind, r2.Kind)
	assert.Len(t, r2.Answers, len(r1.Answers))
}

func TestLoadDualStackBindIPs(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "podman_v6", "10.89.0.1,fdfd:733b:dc3:220b::1\n"+
		"test1 10.89.0.2 fdfd:733b:dc3:220b::2 test1\n")

	snap, err := Load(dir, DefaultPIDFileName)
	require.NoError(t, err)
	assert.Len(t, snap.ListenV4["podman_v6"], 1)
	assert.Len(t, snap.ListenV6["podman_v6"], 1)
}
