//go:build integration

package integration

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rocketbitz/obmm-go/client"
	"github.com/rocketbitz/obmm-go/obmm"
	"github.com/rocketbitz/obmm-go/topology"
)

// devicePath honors MEMLINK_TEST_DEVICE so the suite can target a
// non-default control device.
func devicePath() string {
	if path := os.Getenv("MEMLINK_TEST_DEVICE"); path != "" {
		return path
	}
	return "/dev/obmm"
}

// setupClient skips the test when the control device or the bus
// topology is not present on this host.
func setupClient(t *testing.T) (*client.Client, topology.Controller) {
	t.Helper()

	if _, err := os.Stat(devicePath()); err != nil {
		t.Skipf("control device unavailable: %v", err)
	}

	cli := client.Open(client.Config{DevicePath: devicePath()})
	t.Cleanup(func() { _ = cli.Close() })

	controllers, err := cli.Controllers()
	if err != nil {
		t.Skipf("controller enumeration failed: %v", err)
	}
	if len(controllers) == 0 {
		t.Skip("no bus controllers present")
	}
	return cli, controllers[0]
}

func TestExportUnexportRoundTrip(t *testing.T) {
	cli, ctl := setupClient(t)

	desc := &obmm.MemDesc{DEID: ctl.EID}
	id, err := cli.Export([]uint64{4096}, obmm.ExportAllowMmap, desc)
	if err != nil {
		t.Skipf("export unavailable: %v", err)
	}
	require.NotEqual(t, obmm.InvalidMemID, id)
	require.NotZero(t, desc.Addr)
	require.EqualValues(t, 4096, desc.Length)

	require.NoError(t, cli.Unexport(id, 0))
}

func TestQueryInverse(t *testing.T) {
	cli, ctl := setupClient(t)

	desc := &obmm.MemDesc{DEID: ctl.EID}
	id, err := cli.Export([]uint64{4096}, 0, desc)
	if err != nil {
		t.Skipf("export unavailable: %v", err)
	}
	t.Cleanup(func() { _ = cli.Unexport(id, 0) })

	pa, err := cli.QueryPAByMemID(id, 0)
	require.NoError(t, err)

	back, offset, err := cli.QueryMemIDByPA(pa)
	require.NoError(t, err)
	require.Equal(t, id, back)
	require.Zero(t, offset)
}

func TestDescriptorExchange(t *testing.T) {
	cli, ctl := setupClient(t)

	desc := &obmm.MemDesc{DEID: ctl.EID}
	id, err := cli.Export([]uint64{4096}, 0, desc)
	if err != nil {
		t.Skipf("export unavailable: %v", err)
	}
	t.Cleanup(func() { _ = cli.Unexport(id, 0) })

	dir := t.TempDir()
	path, err := obmm.WriteDescFile(dir, id, desc)
	require.NoError(t, err)
	require.Equal(t, obmm.DescFilePath(dir, id), path)

	back, err := obmm.ReadDescFile(path)
	require.NoError(t, err)
	require.Equal(t, desc.Addr, back.Addr)
	require.Equal(t, desc.Length, back.Length)
	require.Equal(t, desc.DEID, back.DEID)
	require.Equal(t, desc.TokenID, back.TokenID)
}
