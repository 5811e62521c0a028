// memlink is a command-line front end for the OBMM fabric memory
// manager. It exports and imports memory regions, manages preimport
// reservations, resolves address mappings, and enumerates the bus
// controllers visible on this host.
//
// Usage:
//
//	memlink discover --output table
//	memlink export --size 4096 --deid 0x2a --allow-mmap
//	memlink import --desc /tmp/memlink/memdesc_42.json
//	memlink query --pa 0x1002000
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rocketbitz/obmm-go/client"
	"github.com/rocketbitz/obmm-go/obmm"
	"github.com/rocketbitz/obmm-go/topology"
)

const (
	exitOK           = 0
	exitRuntimeError = 1
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitRuntimeError)
	}
}

type appContext struct {
	device   string
	sysRoot  string
	node     string
	logLevel string
	logger   *zap.SugaredLogger
}

func (a *appContext) client() *client.Client {
	return client.Open(client.Config{
		DevicePath:       a.device,
		SysRoot:          a.sysRoot,
		Node:             a.node,
		Logger:           a.logger,
		StructuredLogger: a.logger,
	})
}

// rootCmd builds the top-level cobra command tree.
func rootCmd() *cobra.Command {
	app := &appContext{}

	root := &cobra.Command{
		Use:           "memlink",
		Short:         "OBMM fabric memory manager client",
		Long:          "A client for exporting, importing, and inspecting fabric-attached memory through the OBMM control device.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zap.ParseAtomicLevel(app.logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", app.logLevel, err)
			}
			cfg := zap.NewDevelopmentConfig()
			cfg.Level = level
			logger, err := cfg.Build()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			app.logger = logger.Sugar()
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.logger != nil {
				_ = app.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&app.device, "device", "", "Control device path (default /dev/obmm)")
	root.PersistentFlags().StringVar(&app.sysRoot, "sys-root", "", "Sysfs root scanned for bus controllers (default /sys/devices)")
	root.PersistentFlags().StringVar(&app.node, "node", "", "Node name attached to telemetry")
	root.PersistentFlags().StringVar(&app.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newDiscoverCmd(app),
		newExportCmd(app),
		newExportAddrCmd(app),
		newUnexportCmd(app),
		newImportCmd(app),
		newUnimportCmd(app),
		newPreimportCmd(app),
		newUnpreimportCmd(app),
		newQueryCmd(app),
		newVersionCmd(),
	)

	return root
}

func newDiscoverCmd(app *appContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Enumerate bus controllers and their endpoint identifiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := &topology.Resolver{SysRoot: app.sysRoot}
			controllers, err := resolver.List()
			if err != nil {
				return fmt.Errorf("controller enumeration failed: %w", err)
			}
			if len(controllers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No bus controllers found.")
				return nil
			}
			switch output {
			case "json":
				return printControllersJSON(cmd.OutOrStdout(), controllers)
			case "yaml":
				return printControllersYAML(cmd.OutOrStdout(), controllers)
			default:
				printControllersTable(cmd.OutOrStdout(), controllers)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "table", "Output format (table|json|yaml)")
	return cmd
}

func newExportCmd(app *appContext) *cobra.Command {
	var (
		sizes      []string
		deid       string
		allowMmap  bool
		remoteNUMA bool
		ochip      bool
		cacheable  bool
		descDir    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Allocate and export memory, publishing its descriptor",
		RunE: func(cmd *cobra.Command, args []string) error {
			lengths, err := parseSizes(sizes)
			if err != nil {
				return err
			}
			dest, err := topology.ParseEID(deid)
			if err != nil {
				return err
			}

			desc := &obmm.MemDesc{DEID: dest, Priv: privBytes(ochip, cacheable)}
			var flags obmm.ExportFlag
			if allowMmap {
				flags |= obmm.ExportAllowMmap
			}
			if remoteNUMA {
				flags |= obmm.ExportRemoteNUMA
			}

			cli := app.client()
			defer cli.Close()
			id, err := cli.Export(lengths, flags, desc)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			path, err := obmm.WriteDescFile(descDir, id, desc)
			if err != nil {
				return fmt.Errorf("publish descriptor: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported memid %d addr %#x length %d\n", id, desc.Addr, desc.Length)
			fmt.Fprintf(cmd.OutOrStdout(), "descriptor written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&sizes, "size", nil, "Bytes to allocate per local NUMA node (repeatable)")
	cmd.Flags().StringVar(&deid, "deid", "", "Destination endpoint identifier (hi:lo or bare value)")
	cmd.Flags().BoolVar(&allowMmap, "allow-mmap", false, "Permit local mapping of the exported region")
	cmd.Flags().BoolVar(&remoteNUMA, "remote-numa", false, "Expose the region to remote NUMA nodes")
	cmd.Flags().BoolVar(&ochip, "priv-ochip", false, "Set the owner-chip private flag")
	cmd.Flags().BoolVar(&cacheable, "priv-cacheable", false, "Set the cacheable private flag")
	cmd.Flags().StringVar(&descDir, "desc-dir", "", "Directory for descriptor files (default "+obmm.DefaultDescDir+")")
	_ = cmd.MarkFlagRequired("size")
	_ = cmd.MarkFlagRequired("deid")
	return cmd
}

func newExportAddrCmd(app *appContext) *cobra.Command {
	var (
		pid        int
		va         string
		length     uint64
		deid       string
		allowMmap  bool
		remoteNUMA bool
		descDir    string
	)

	cmd := &cobra.Command{
		Use:   "export-addr",
		Short: "Pin and export a virtual address range of a process",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := strconv.ParseUint(va, 0, 64)
			if err != nil {
				return fmt.Errorf("invalid --va %q: %w", va, err)
			}
			dest, err := topology.ParseEID(deid)
			if err != nil {
				return err
			}

			desc := &obmm.MemDesc{DEID: dest}
			var flags obmm.ExportFlag
			if allowMmap {
				flags |= obmm.ExportAllowMmap
			}
			if remoteNUMA {
				flags |= obmm.ExportRemoteNUMA
			}

			cli := app.client()
			defer cli.Close()
			id, err := cli.ExportAddr(pid, uintptr(addr), length, flags, desc)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			path, err := obmm.WriteDescFile(descDir, id, desc)
			if err != nil {
				return fmt.Errorf("publish descriptor: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported memid %d addr %#x length %d\n", id, desc.Addr, desc.Length)
			fmt.Fprintf(cmd.OutOrStdout(), "descriptor written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().IntVar(&pid, "pid", 0, "Process id owning the range (0 for this process)")
	cmd.Flags().StringVar(&va, "va", "", "Virtual address of the range")
	cmd.Flags().Uint64Var(&length, "length", 0, "Length of the range in bytes")
	cmd.Flags().StringVar(&deid, "deid", "", "Destination endpoint identifier")
	cmd.Flags().BoolVar(&allowMmap, "allow-mmap", false, "Permit local mapping of the exported region")
	cmd.Flags().BoolVar(&remoteNUMA, "remote-numa", false, "Expose the region to remote NUMA nodes")
	cmd.Flags().StringVar(&descDir, "desc-dir", "", "Directory for descriptor files")
	_ = cmd.MarkFlagRequired("va")
	_ = cmd.MarkFlagRequired("length")
	_ = cmd.MarkFlagRequired("deid")
	return cmd
}

func newUnexportCmd(app *appContext) *cobra.Command {
	var (
		id    uint64
		force bool
	)

	cmd := &cobra.Command{
		Use:   "unexport",
		Short: "Tear down an export transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			var flags obmm.UnexportFlag
			if force {
				flags |= obmm.UnexportForce
			}
			cli := app.client()
			defer cli.Close()
			if err := cli.Unexport(obmm.MemID(id), flags); err != nil {
				return fmt.Errorf("unexport failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unexported memid %d\n", id)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&id, "id", 0, "Export transaction id")
	cmd.Flags().BoolVar(&force, "force", false, "Tear down even with importers attached")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newImportCmd(app *appContext) *cobra.Command {
	var (
		descPath   string
		numaRemote bool
		preimport  bool
		baseDist   int
		numa       int
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Attach to a remotely exported region from its descriptor file",
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := obmm.ReadDescFile(descPath)
			if err != nil {
				return err
			}
			var flags obmm.ImportFlag
			if numaRemote {
				flags |= obmm.ImportNUMARemote
			}
			if preimport {
				flags |= obmm.ImportPreimport
			}

			cli := app.client()
			defer cli.Close()
			id, assigned, err := cli.Import(desc, flags, baseDist, numa)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported memid %d on numa node %d\n", id, assigned)
			return nil
		},
	}

	cmd.Flags().StringVar(&descPath, "desc", "", "Descriptor file published by the exporting side")
	cmd.Flags().BoolVar(&numaRemote, "numa-remote", false, "Attach the region on a remote NUMA node")
	cmd.Flags().BoolVar(&preimport, "from-preimport", false, "Satisfy the import from a preimport reservation")
	cmd.Flags().IntVar(&baseDist, "base-dist", 0, "NUMA base distance for remote attachment (0-255)")
	cmd.Flags().IntVar(&numa, "numa", obmm.NUMANone, "NUMA placement hint (-1 for no preference)")
	_ = cmd.MarkFlagRequired("desc")
	return cmd
}

func newUnimportCmd(app *appContext) *cobra.Command {
	var id uint64

	cmd := &cobra.Command{
		Use:   "unimport",
		Short: "Detach an imported region",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := app.client()
			defer cli.Close()
			if err := cli.Unimport(obmm.MemID(id), 0); err != nil {
				return fmt.Errorf("unimport failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unimported memid %d\n", id)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&id, "id", 0, "Import transaction id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func preimportFlags(cmd *cobra.Command, info *preimportArgs) {
	cmd.Flags().StringVar(&info.pa, "pa", "", "Physical address of the reserved range")
	cmd.Flags().Uint64Var(&info.length, "length", 0, "Length of the reservation in bytes")
	cmd.Flags().IntVar(&info.baseDist, "base-dist", 0, "NUMA base distance (0-255)")
	cmd.Flags().IntVar(&info.numa, "numa", obmm.NUMANone, "NUMA placement hint (-1 for no preference)")
	cmd.Flags().StringVar(&info.seid, "seid", "", "Source endpoint identifier")
	cmd.Flags().StringVar(&info.deid, "deid", "", "Destination endpoint identifier")
	cmd.Flags().Uint32Var(&info.scna, "scna", 0, "Source channel number")
	cmd.Flags().Uint32Var(&info.dcna, "dcna", 0, "Destination channel number")
	_ = cmd.MarkFlagRequired("pa")
	_ = cmd.MarkFlagRequired("length")
	_ = cmd.MarkFlagRequired("seid")
	_ = cmd.MarkFlagRequired("deid")
}

type preimportArgs struct {
	pa       string
	length   uint64
	baseDist int
	numa     int
	seid     string
	deid     string
	scna     uint32
	dcna     uint32
}

func (p *preimportArgs) desc() (*obmm.PreimportDesc, error) {
	pa, err := strconv.ParseUint(p.pa, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid --pa %q: %w", p.pa, err)
	}
	seid, err := topology.ParseEID(p.seid)
	if err != nil {
		return nil, err
	}
	deid, err := topology.ParseEID(p.deid)
	if err != nil {
		return nil, err
	}
	return &obmm.PreimportDesc{
		PA:       pa,
		Length:   p.length,
		BaseDist: p.baseDist,
		NUMA:     p.numa,
		SEID:     seid,
		DEID:     deid,
		SCNA:     p.scna,
		DCNA:     p.dcna,
	}, nil
}

func newPreimportCmd(app *appContext) *cobra.Command {
	args := &preimportArgs{}

	cmd := &cobra.Command{
		Use:   "preimport",
		Short: "Reserve physical memory for a future import",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := args.desc()
			if err != nil {
				return err
			}
			cli := app.client()
			defer cli.Close()
			if err := cli.DeclarePreimport(info, 0); err != nil {
				return fmt.Errorf("preimport failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reserved pa %#x length %d on numa node %d\n", info.PA, info.Length, info.NUMA)
			return nil
		},
	}

	preimportFlags(cmd, args)
	return cmd
}

func newUnpreimportCmd(app *appContext) *cobra.Command {
	args := &preimportArgs{}

	cmd := &cobra.Command{
		Use:   "unpreimport",
		Short: "Drop a preimport reservation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := args.desc()
			if err != nil {
				return err
			}
			cli := app.client()
			defer cli.Close()
			if err := cli.UndeclarePreimport(info, 0); err != nil {
				return fmt.Errorf("unpreimport failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released pa %#x length %d\n", info.PA, info.Length)
			return nil
		},
	}

	preimportFlags(cmd, args)
	return cmd
}

func newQueryCmd(app *appContext) *cobra.Command {
	var (
		pa     string
		id     uint64
		offset uint64
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Resolve a physical address to its export, or the reverse",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := app.client()
			defer cli.Close()

			if pa != "" {
				addr, err := strconv.ParseUint(pa, 0, 64)
				if err != nil {
					return fmt.Errorf("invalid --pa %q: %w", pa, err)
				}
				memID, off, err := cli.QueryMemIDByPA(addr)
				if err != nil {
					return fmt.Errorf("query failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pa %#x belongs to memid %d at offset %#x\n", addr, memID, off)
				return nil
			}

			addr, err := cli.QueryPAByMemID(obmm.MemID(id), offset)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "memid %d offset %#x maps to pa %#x\n", id, offset, addr)
			return nil
		},
	}

	cmd.Flags().StringVar(&pa, "pa", "", "Physical address to resolve")
	cmd.Flags().Uint64Var(&id, "id", 0, "Export transaction id to resolve")
	cmd.Flags().Uint64Var(&offset, "offset", 0, "Byte offset within the export")
	cmd.MarkFlagsMutuallyExclusive("pa", "id")
	cmd.MarkFlagsOneRequired("pa", "id")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "memlink %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}
}

func parseSizes(raw []string) ([]uint64, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one --size is required")
	}
	sizes := make([]uint64, 0, len(raw))
	for _, s := range raw {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --size %q: %w", s, err)
		}
		sizes = append(sizes, v)
	}
	return sizes, nil
}

func privBytes(ochip, cacheable bool) []byte {
	var flags obmm.PrivFlag
	if ochip {
		flags |= obmm.PrivOChip
	}
	if cacheable {
		flags |= obmm.PrivCacheable
	}
	if flags == 0 {
		return nil
	}
	return flags.Bytes()
}
