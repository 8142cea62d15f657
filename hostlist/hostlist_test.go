package hostlist_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/hostlist"
)

func mustAddr(t *testing.T, s string) addr.Address {
	t.Helper()
	a, err := addr.Parse(s)
	require.NoError(t, err)
	return a
}

func TestRegisterIgnoresDuplicateAndBlacklisted(t *testing.T) {
	store := hostlist.New(hostlist.Config{
		Blacklist: []hostlist.BlacklistRule{{Host: "10.0.0.1"}},
	})

	a := mustAddr(t, "tcp://1.2.3.4:8333")
	require.NoError(t, store.Register(a, hostlist.TierGrey))
	require.NoError(t, store.Register(a, hostlist.TierGold)) // duplicate: ignored
	tier, ok := store.TierOf(a)
	require.True(t, ok)
	require.Equal(t, hostlist.TierGrey, tier)

	blocked := mustAddr(t, "tcp://10.0.0.1:8333")
	require.NoError(t, store.Register(blocked, hostlist.TierGrey))
	_, ok = store.TierOf(blocked)
	require.False(t, ok)
}

func TestPromoteDemote(t *testing.T) {
	store := hostlist.New(hostlist.Config{})
	a := mustAddr(t, "tcp://1.2.3.4:8333")
	require.NoError(t, store.Register(a, hostlist.TierGrey))

	require.NoError(t, store.Promote(a))
	tier, _ := store.TierOf(a)
	require.Equal(t, hostlist.TierWhite, tier)

	require.NoError(t, store.Promote(a))
	tier, _ = store.TierOf(a)
	require.Equal(t, hostlist.TierGold, tier)

	// Gold->Anchor only applies to pinned addresses.
	require.NoError(t, store.Promote(a))
	tier, _ = store.TierOf(a)
	require.Equal(t, hostlist.TierGold, tier)

	require.NoError(t, store.Demote(a, "timeout"))
	tier, _ = store.TierOf(a)
	require.Equal(t, hostlist.TierWhite, tier)
}

func TestDemoteForcesBlackAfterThreshold(t *testing.T) {
	store := hostlist.New(hostlist.Config{DemoteToBlack: 2})
	a := mustAddr(t, "tcp://1.2.3.4:8333")
	require.NoError(t, store.Register(a, hostlist.TierGold))

	require.NoError(t, store.Demote(a, "err1"))
	tier, _ := store.TierOf(a)
	require.Equal(t, hostlist.TierWhite, tier)

	require.NoError(t, store.Demote(a, "err2"))
	tier, _ = store.TierOf(a)
	require.Equal(t, hostlist.TierBlack, tier)
}

func TestAcquireReleaseMutualExclusion(t *testing.T) {
	store := hostlist.New(hostlist.Config{})
	a := mustAddr(t, "tcp://1.2.3.4:8333")
	require.NoError(t, store.Register(a, hostlist.TierGrey))

	require.NoError(t, store.Acquire(a, hostlist.StateConnect))
	require.NoError(t, store.Acquire(a, hostlist.StateConnect)) // re-acquiring the same state is idempotent

	err := store.Acquire(a, hostlist.StateRefining)
	require.Error(t, err)

	store.Release(a)
	require.Equal(t, hostlist.StateNone, store.TransientState(a))
	require.NoError(t, store.Acquire(a, hostlist.StateConnect))
}

func TestFetchAddressSkipsTransientAndBlack(t *testing.T) {
	store := hostlist.New(hostlist.Config{})
	held := mustAddr(t, "tcp://1.2.3.4:8333")
	free := mustAddr(t, "tcp://5.6.7.8:8333")
	banned := mustAddr(t, "tcp://9.9.9.9:8333")

	require.NoError(t, store.Register(held, hostlist.TierWhite))
	require.NoError(t, store.Register(free, hostlist.TierWhite))
	require.NoError(t, store.Register(banned, hostlist.TierBlack))
	require.NoError(t, store.Acquire(held, hostlist.StateConnect))

	for i := 0; i < 20; i++ {
		got, ok := store.FetchAddress(nil)
		require.True(t, ok)
		require.True(t, got.Equal(free))
	}
}

func TestFilterByScheme(t *testing.T) {
	store := hostlist.New(hostlist.Config{})
	tcpAddr := mustAddr(t, "tcp://1.2.3.4:8333")
	unixAddr, err := addr.New(addr.SchemeUnix, "/tmp/darkfi.sock", 0)
	require.NoError(t, err)

	require.NoError(t, store.Register(tcpAddr, hostlist.TierWhite))
	require.NoError(t, store.Register(unixAddr, hostlist.TierWhite))

	got := store.Filter(map[addr.Scheme]bool{addr.SchemeTCP: true})
	require.Len(t, got, 1)
	require.True(t, got[0].Equal(tcpAddr))
}

func TestCapacityEvictsOldest(t *testing.T) {
	store := hostlist.New(hostlist.Config{
		Capacity: hostlist.Capacity{hostlist.TierGrey: 1},
	})
	first := mustAddr(t, "tcp://1.1.1.1:8333")
	second := mustAddr(t, "tcp://2.2.2.2:8333")

	require.NoError(t, store.Register(first, hostlist.TierGrey))
	require.NoError(t, store.Register(second, hostlist.TierGrey))

	require.Equal(t, 1, store.Size(hostlist.TierGrey))
	_, ok := store.TierOf(second)
	require.True(t, ok, "newest entry should survive eviction")
	_, ok = store.TierOf(first)
	require.False(t, ok, "oldest entry should have been evicted")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hostlist.tsv")

	store := hostlist.New(hostlist.Config{})
	a := mustAddr(t, "tcp://1.2.3.4:8333")
	require.NoError(t, store.Register(a, hostlist.TierGold))
	require.NoError(t, store.Save(path))

	loaded := hostlist.New(hostlist.Config{})
	require.NoError(t, loaded.Load(path))

	tier, ok := loaded.TierOf(a)
	require.True(t, ok)
	require.Equal(t, hostlist.TierGold, tier)
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	store := hostlist.New(hostlist.Config{})
	require.NoError(t, store.Load(filepath.Join(t.TempDir(), "does-not-exist.tsv")))
}
