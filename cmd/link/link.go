// Package link implements the `gbtk link` subcommand: merging, placing,
// and resolving a set of object files into a ROM image plus symbol and map
// files.
package link

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/brackenfield/gbtk/cmd/warnflags"
	"github.com/brackenfield/gbtk/pkg/diag"
	gbtklink "github.com/brackenfield/gbtk/pkg/link"
	"github.com/brackenfield/gbtk/pkg/link/emit"
	"github.com/brackenfield/gbtk/pkg/link/region"
	"github.com/brackenfield/gbtk/pkg/obj"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	outPath      string
	symPath      string
	mapPath      string
	overlayPath  string
	padByte      uint8
	thirtyTwoKiB bool
	regionFile   string
	warnNames    []string
	werror       []string
)

var LinkCmd = &cobra.Command{
	Use:   "link <object-file>...",
	Short: "Link object files into a ROM image",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLink,
}

func init() {
	LinkCmd.Flags().StringVarP(&outPath, "output", "o", "a.gb", "output ROM path")
	LinkCmd.Flags().StringVarP(&symPath, "sym", "s", "", "write a symbol file")
	LinkCmd.Flags().StringVarP(&mapPath, "map", "m", "", "write a map file")
	LinkCmd.Flags().StringVarP(&overlayPath, "overlay", "O", "", "base image to patch sections into, instead of a pad-filled blank")
	LinkCmd.Flags().Uint8VarP(&padByte, "pad", "p", 0xFF, "pad byte for ROM bytes no section covers")
	LinkCmd.Flags().BoolVarP(&thirtyTwoKiB, "tiny", "t", false, "build a flat, non-banked 32KiB image")
	LinkCmd.Flags().StringVarP(&regionFile, "region-config", "C", "", "YAML file overriding the default section-type address/bank windows")
	LinkCmd.Flags().StringArrayVarP(&warnNames, "warn", "W", nil, "enable/silence a warning category (-W no-NAME to silence)")
	LinkCmd.Flags().StringArrayVar(&werror, "Werror", nil, "promote a warning category to an error (bare -Werror promotes all)")
}

func runLink(c *cobra.Command, args []string) error {
	if !c.Flags().Changed("pad") && viper.IsSet("pad-byte") {
		padByte = uint8(viper.GetInt("pad-byte"))
	}

	policy, err := warnflags.BuildPolicy(warnNames, werror)
	if err != nil {
		return err
	}
	bag := diag.NewBag(policy, diag.NewTextSink(os.Stderr, false))

	regions := region.Default()
	if regionFile != "" {
		regions, err = region.LoadOverrides(regionFile)
		if err != nil {
			return err
		}
	}

	modules := make([]*obj.Module, 0, len(args))
	for _, p := range args {
		mod, err := readModule(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		modules = append(modules, mod)
	}
	slog.Debug("linking", "modules", len(modules), "out", outPath)

	linker := gbtklink.New(modules, regions, bag)
	res, err := linker.Link()
	if err != nil {
		return err
	}
	if bag.ExitCode() != 0 {
		return fmt.Errorf("link failed with %d error(s)", bag.ErrorCount())
	}
	slog.Debug("linked", "sections", len(res.Sections), "symbols", len(res.Symbols))

	opts := emit.ROMOptions{Pad: padByte, ThirtyTwoKiB: thirtyTwoKiB}
	if overlayPath != "" {
		overlay, err := os.ReadFile(overlayPath)
		if err != nil {
			return err
		}
		opts.Overlay = overlay
	}

	romFile, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer romFile.Close()
	if err := emit.WriteROM(romFile, res, opts); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
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
		if err := emit.WriteMapFile(f, res, regions); err != nil {
			return err
		}
	}
	return nil
}

func readModule(path string) (*obj.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return obj.Read(f)
}
