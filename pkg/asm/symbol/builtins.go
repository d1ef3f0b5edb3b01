package symbol

import (
	"fmt"
	"time"
)

// These are the major/minor/patch version numbers this toolchain reports through the
// __RGBDS_MAJOR__/_MINOR__/_PATCH__-style built-ins, frozen at release.
const (
	ToolchainMajor = 0
	ToolchainMinor = 9
	ToolchainPatch = 0
)

// Clock abstracts the wall-clock source for time-dependent built-ins
// (__DATE__, __TIME__, __UTC_YEAR__, ...) so tests can supply a fixed
// instant instead of depending on the real clock.
type Clock interface {
	Now() (year, month, day, hour, min, sec int, utc bool)
}

// SystemClock reads the real wall clock in UTC, the Clock a Driver binds
// into its BuildContext outside of tests.
type SystemClock struct{}

func (SystemClock) Now() (year, month, day, hour, min, sec int, utc bool) {
	now := time.Now().UTC()
	return now.Year(), int(now.Month()), now.Day(), now.Hour(), now.Minute(), now.Second(), true
}

// BuildContext carries everything the per-file built-ins (__FILE__,
// __LINE__, _NARG) need but a table alone does not track; the parser
// driver's syncBuildContext updates it before each statement.
type BuildContext struct {
	FileName string
	Line     int
	NArg     int
	Clock    Clock
}

var activeContext = &BuildContext{}

// Bind installs ctx as the context builtins read from. Assemblers create
// one Table and one BuildContext per run and bind them together.
func (t *Table) Bind(ctx *BuildContext) {
	activeContext = ctx
}

func registerBuiltins(t *Table) {
	num := func(name string, fn func() int32) {
		t.builtins[name] = func(*Table) *Symbol {
			return &Symbol{Name: name, Kind: KindBuiltin, Value: fn(), HasValue: true}
		}
	}
	str := func(name string, fn func() string) {
		t.builtins[name] = func(*Table) *Symbol {
			return &Symbol{Name: name, Kind: KindBuiltin, StringValue: fn()}
		}
	}

	t.builtins["@"] = func(t *Table) *Symbol {
		// The current section's write cursor; resolved by the section
		// builder, not here — callers that need "@" look it up through
		// the active section instead of the symbol table in practice,
		// but a placeholder keeps name resolution uniform.
		return &Symbol{Name: "@", Kind: KindBuiltin}
	}

	num("_NARG", func() int32 { return int32(activeContext.NArg) })
	str("__FILE__", func() string { return activeContext.FileName })
	num("__LINE__", func() int32 { return int32(activeContext.Line) })

	str("__DATE__", func() string {
		y, mo, d, _, _, _, _ := clockNow()
		return fmt.Sprintf("%04d-%02d-%02d", y, mo, d)
	})
	str("__TIME__", func() string {
		_, _, _, h, mi, s, _ := clockNow()
		return fmt.Sprintf("%02d:%02d:%02d", h, mi, s)
	})
	str("__ISO_8601_LOCAL__", func() string {
		y, mo, d, h, mi, s, _ := clockNow()
		return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d", y, mo, d, h, mi, s)
	})
	str("__ISO_8601_UTC__", func() string {
		y, mo, d, h, mi, s, _ := clockNow()
		return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02dZ", y, mo, d, h, mi, s)
	})
	num("__UTC_YEAR__", func() int32 { y, _, _, _, _, _, _ := clockNow(); return int32(y) })
	num("__UTC_MONTH__", func() int32 { _, mo, _, _, _, _, _ := clockNow(); return int32(mo) })
	num("__UTC_DAY__", func() int32 { _, _, d, _, _, _, _ := clockNow(); return int32(d) })
	num("__UTC_HOUR__", func() int32 { _, _, _, h, _, _, _ := clockNow(); return int32(h) })
	num("__UTC_MINUTE__", func() int32 { _, _, _, _, mi, _, _ := clockNow(); return int32(mi) })
	num("__UTC_SECOND__", func() int32 { _, _, _, _, _, s, _ := clockNow(); return int32(s) })

	num("__RGBDS_MAJOR__", func() int32 { return ToolchainMajor })
	num("__RGBDS_MINOR__", func() int32 { return ToolchainMinor })
	num("__RGBDS_PATCH__", func() int32 { return ToolchainPatch })
}

func clockNow() (year, month, day, hour, min, sec int, utc bool) {
	if activeContext.Clock == nil {
		return 0, 0, 0, 0, 0, 0, true
	}
	return activeContext.Clock.Now()
}
