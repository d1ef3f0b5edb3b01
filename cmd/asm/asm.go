// Package asm implements the `gbtk asm` subcommand: driving pkg/asm/parser
// over one source file and writing the resulting object file, symbol
// file, and map file.
package asm

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/brackenfield/gbtk/cmd/warnflags"
	"github.com/brackenfield/gbtk/pkg/asm/parser"
	"github.com/brackenfield/gbtk/pkg/diag"
	"github.com/brackenfield/gbtk/pkg/link"
	"github.com/brackenfield/gbtk/pkg/link/emit"
	"github.com/brackenfield/gbtk/pkg/link/region"
	"github.com/brackenfield/gbtk/pkg/obj"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	outPath     string
	includeDirs []string
	symPath     string
	mapPath     string
	depPath     string
	warnNames   []string
	werror      []string
	maxDepth    int
	optimize    bool
)

var AsmCmd = &cobra.Command{
	Use:   "asm <file>",
	Short: "Assemble a Game Boy source file into an object file",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsm,
}

func init() {
	AsmCmd.Flags().StringVarP(&outPath, "output", "o", "", "output object file path (default: input with .o extension)")
	AsmCmd.Flags().StringArrayVarP(&includeDirs, "include", "i", nil, "add a directory to the INCLUDE search path")
	AsmCmd.Flags().StringVarP(&symPath, "sym", "s", "", "write a preview symbol file (fixed-address symbols only)")
	AsmCmd.Flags().StringVarP(&mapPath, "map", "m", "", "write a preview map file (fixed-org sections only)")
	AsmCmd.Flags().StringVarP(&depPath, "dep", "M", "", "write a Makefile dependency file listing every INCLUDEd file")
	AsmCmd.Flags().StringArrayVarP(&warnNames, "warn", "W", nil, "enable/silence a warning category (-W no-NAME to silence)")
	AsmCmd.Flags().StringArrayVar(&werror, "Werror", nil, "promote a warning category to an error (bare -Werror promotes all)")
	AsmCmd.Flags().IntVarP(&maxDepth, "recursion-depth", "r", 0, "max INCLUDE/MACRO/REPT nesting depth (0: unbounded)")
	AsmCmd.Flags().BoolVarP(&optimize, "optimize", "O", false, "enable the absolute-to-HRAM load peephole rewrite")
}

func runAsm(c *cobra.Command, args []string) error {
	srcPath := args[0]
	if outPath == "" {
		outPath = strings.TrimSuffix(srcPath, filepath.Ext(srcPath)) + ".o"
	}

	policy, err := warnflags.BuildPolicy(warnNames, werror)
	if err != nil {
		return err
	}
	bag := diag.NewBag(policy, diag.NewTextSink(os.Stderr, false))

	lines, err := readLines(srcPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", srcPath, err)
	}

	dirs := includeDirs
	if len(dirs) == 0 {
		if configured := viper.GetString("include-path"); configured != "" {
			dirs = []string{configured}
		}
	}
	resolver := &dirIncludeResolver{dirs: dirs}
	d := parser.NewDriver(bag, resolver)
	d.SetMaxDepth(maxDepth)
	d.SetOptimize(optimize)

	slog.Debug("assembling", "file", srcPath, "includeDirs", includeDirs)
	mod, err := d.Assemble(srcPath, lines)
	if err != nil {
		return err
	}
	slog.Debug("assembled", "file", srcPath, "sections", len(mod.Sections), "symbols", len(mod.Symbols))

	if bag.ExitCode() != 0 {
		return fmt.Errorf("assembly of %s failed with %d error(s)", srcPath, bag.ErrorCount())
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := obj.Write(out, mod); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}

	if depPath != "" {
		if err := writeDepFile(depPath, outPath, mod.FileNames); err != nil {
			return err
		}
	}
	if symPath != "" || mapPath != "" {
		if err := writePreview(mod); err != nil {
			return err
		}
	}
	return nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\n"), nil
}

// dirIncludeResolver implements parser.IncludeResolver by trying the name
// as given (relative to the working directory) first, then each configured
// -i directory.
type dirIncludeResolver struct{ dirs []string }

func (r *dirIncludeResolver) ReadLines(name string) ([]string, error) {
	if data, err := os.ReadFile(name); err == nil {
		return strings.Split(string(data), "\n"), nil
	}
	for _, dir := range r.dirs {
		if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			return strings.Split(string(data), "\n"), nil
		}
	}
	return nil, fmt.Errorf("INCLUDE %q: not found in any search path", name)
}

// writeDepFile emits a Makefile rule listing every file that contributed
// to target (spec.md §6's "-M dependency file"), deduplicated and sorted
// for a stable diff across runs.
func writeDepFile(depPath, target string, fileNames []string) error {
	seen := make(map[string]bool, len(fileNames))
	var uniq []string
	for _, f := range fileNames {
		if f != "" && !seen[f] {
			seen[f] = true
			uniq = append(uniq, f)
		}
	}
	sort.Strings(uniq)

	f, err := os.Create(depPath)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%s:", target)
	for _, dep := range uniq {
		fmt.Fprintf(w, " \\\n  %s", dep)
	}
	fmt.Fprintln(w)
	return w.Flush()
}

// writePreview renders -s/-m output ahead of linking, from whatever
// symbols and sections already carry a fixed address (ROM0/SECTION
// ...[$addr] declarations); floating sections have no address until the
// linker places them, so this is a best-effort preview, not the final
// symbol/map file the linker produces from the same writers.
func writePreview(mod *obj.Module) error {
	res := &link.Result{}
	for _, s := range mod.Sections {
		if s.Org == obj.FloatingOrg {
			continue
		}
		res.Sections = append(res.Sections, link.PlacedSection{
			Name: s.Name, Type: s.Type, Org: s.Org, Bank: s.Bank, Size: s.Size, Data: s.Data,
		})
	}
	for _, s := range mod.Symbols {
		if s.SectionID < 0 || int(s.SectionID) >= len(mod.Sections) {
			continue
		}
		sec := mod.Sections[s.SectionID]
		if sec.Org == obj.FloatingOrg {
			continue
		}
		res.Symbols = append(res.Symbols, link.ResolvedSymbol{
			Name: s.Name, Addr: s.Value, Bank: sec.Bank, Exported: s.Type == obj.SymExport,
		})
	}

	if symPath != "" {
		f, err := os.Create(symPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := emit.WriteSymbolFile(f, res, "gbtk"); err != nil {
			return err
		}
	}
	if mapPath != "" {
		f, err := os.Create(mapPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := emit.WriteMapFile(f, res, region.Default()); err != nil {
			return err
		}
	}
	return nil
}
