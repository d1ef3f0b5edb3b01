// Package warnflags turns the -W NAME / -Werror[=NAME] CLI flags shared by
// `gbtk asm` and `gbtk link` into a diag.Policy. It lives apart from the
// cmd package itself so both subcommand packages can import it without an
// import cycle through cmd.AddCommand.
package warnflags

import (
	"fmt"
	"strings"

	"github.com/brackenfield/gbtk/pkg/diag"
)

var categoryNames = map[string]diag.Category{
	"assert":           diag.CategoryAssert,
	"builtin-arg":      diag.CategoryBuiltinArg,
	"empty-strrpl":     diag.CategoryEmptyStrRpl,
	"long-string":      diag.CategoryLongString,
	"numeric-string-1": diag.CategoryNumericString1,
	"numeric-string-2": diag.CategoryNumericString2,
	"obsolete":         diag.CategoryObsolete,
	"user":             diag.CategoryUser,
	"parser":           diag.CategoryParser,
}

// BuildPolicy turns -W NAME and -Werror[=NAME] flag values into a
// diag.Policy (spec.md §6/§7). "-W no-NAME" silences NAME; a bare
// "-Werror" entry (empty string) promotes every category, "-Werror=NAME"
// promotes just NAME.
func BuildPolicy(warnNames, werror []string) (*diag.Policy, error) {
	p := diag.NewPolicy()
	for _, name := range warnNames {
		if rest, silenced := strings.CutPrefix(name, "no-"); silenced {
			cat, ok := categoryNames[rest]
			if !ok {
				return nil, fmt.Errorf("unknown warning category %q", rest)
			}
			p.Silence(cat)
			continue
		}
		if _, ok := categoryNames[name]; !ok {
			return nil, fmt.Errorf("unknown warning category %q", name)
		}
	}
	for _, name := range werror {
		if name == "" {
			p.PromoteAll()
			continue
		}
		cat, ok := categoryNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown warning category %q", name)
		}
		p.Promote(cat)
	}
	return p, nil
}
