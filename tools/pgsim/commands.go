package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"jtos/kernel/mem"
	"jtos/kernel/mem/vmm"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

// machineFlags holds the flags shared by all commands that boot a machine.
type machineFlags struct {
	configPath string
}

func (mf *machineFlags) register(f *flag.FlagSet) {
	f.StringVar(&mf.configPath, "config", "machine.toml", "path to the machine description.")
}

// boot loads the configuration and boots the machine it describes.
func (mf *machineFlags) boot(log *logrus.Entry) (*machine, error) {
	cfg, err := loadConfig(mf.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", mf.configPath, err)
	}

	return bootMachine(cfg, log.WithField("config", mf.configPath))
}

// setupCmd implements subcommands.Command for the "setup" command.
type setupCmd struct {
	machineFlags
}

// Name implements subcommands.Command.Name.
func (*setupCmd) Name() string {
	return "setup"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*setupCmd) Synopsis() string {
	return "build and activate the kernel page tables"
}

// Usage implements subcommands.Command.Usage.
func (*setupCmd) Usage() string {
	return "setup [-config <file>]\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *setupCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
}

// Execute implements subcommands.Command.Execute.
func (c *setupCmd) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	log := args[0].(*logrus.Entry)

	m, err := c.boot(log)
	if err != nil {
		log.WithError(err).Error("paging setup failed")
		return subcommands.ExitFailure
	}
	defer m.Close()

	writeSummary(os.Stdout, m)
	return subcommands.ExitSuccess
}

func writeSummary(w io.Writer, m *machine) {
	stats := m.as.Stats()
	fmt.Fprintf(w, "cr3:    0x%x\n", uint64(m.as.Root()))
	fmt.Fprintf(w, "tables: %d\n", stats.Tables)
	fmt.Fprintf(w, "pages:  %d\n", stats.Pages)
}

// translateCmd implements subcommands.Command for the "translate" command.
type translateCmd struct {
	machineFlags
}

// Name implements subcommands.Command.Name.
func (*translateCmd) Name() string {
	return "translate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*translateCmd) Synopsis() string {
	return "translate virtual addresses using the kernel page tables"
}

// Usage implements subcommands.Command.Usage.
func (*translateCmd) Usage() string {
	return "translate [-config <file>] <virtual address>...\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *translateCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
}

// Execute implements subcommands.Command.Execute.
func (c *translateCmd) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	log := args[0].(*logrus.Entry)

	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	addrs := make([]mem.VirtAddr, 0, f.NArg())
	for _, arg := range f.Args() {
		v, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			log.WithError(err).Errorf("invalid virtual address %q", arg)
			return subcommands.ExitUsageError
		}
		addrs = append(addrs, mem.VirtAddr(v))
	}

	m, err := c.boot(log)
	if err != nil {
		log.WithError(err).Error("paging setup failed")
		return subcommands.ExitFailure
	}
	defer m.Close()

	if writeTranslations(os.Stdout, m.as, addrs) {
		return subcommands.ExitSuccess
	}
	return subcommands.ExitFailure
}

// writeTranslations prints one line per address and returns false if any of
// them is unmapped.
func writeTranslations(w io.Writer, as *vmm.AddressSpace, addrs []mem.VirtAddr) bool {
	allMapped := true
	for _, virtAddr := range addrs {
		physAddr, err := as.Translate(virtAddr)
		if err != nil {
			fmt.Fprintf(w, "0x%016x -> %s\n", uint64(virtAddr), err.Message)
			allMapped = false
			continue
		}
		fmt.Fprintf(w, "0x%016x -> 0x%x\n", uint64(virtAddr), uint64(physAddr))
	}
	return allMapped
}

// dumpCmd implements subcommands.Command for the "dump" command.
type dumpCmd struct {
	machineFlags
}

// Name implements subcommands.Command.Name.
func (*dumpCmd) Name() string {
	return "dump"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*dumpCmd) Synopsis() string {
	return "list the contiguous ranges mapped by the kernel page tables"
}

// Usage implements subcommands.Command.Usage.
func (*dumpCmd) Usage() string {
	return "dump [-config <file>]\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *dumpCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
}

// Execute implements subcommands.Command.Execute.
func (c *dumpCmd) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	log := args[0].(*logrus.Entry)

	m, err := c.boot(log)
	if err != nil {
		log.WithError(err).Error("paging setup failed")
		return subcommands.ExitFailure
	}
	defer m.Close()

	writeRanges(os.Stdout, m.ranges())
	return subcommands.ExitSuccess
}

func writeRanges(w io.Writer, ranges []mappedRange) {
	for _, r := range ranges {
		size := r.Pages << mem.PageShift
		fmt.Fprintf(w, "[0x%016x - 0x%016x] -> [0x%010x - 0x%010x] pages: %d\n",
			uint64(r.Virt), uint64(r.Virt)+size, uint64(r.Phys), uint64(r.Phys)+size, r.Pages)
	}
}
