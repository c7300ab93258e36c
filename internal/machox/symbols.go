package machox

import (
	"sort"
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// nlist n_type bits.
const (
	nStab = 0xe0
	nType = 0x0e
	nSect = 0x0e
)

// Symbol is a defined symbol in a code section.
type Symbol struct {
	Name string // demangled when possible
	Raw  string
	Addr uint64
}

// Symbols returns the defined, non-debug symbols that live in sec, sorted by
// address. Images without a symbol table return nil.
func (im *Image) Symbols(sec *Section) []Symbol {
	if im.File == nil || im.File.Symtab == nil || sec == nil {
		return nil
	}

	var out []Symbol
	seen := make(map[uint64]bool)
	for _, s := range im.File.Symtab.Syms {
		if s.Type&nStab != 0 || s.Type&nType != nSect {
			continue
		}
		if int(s.Sect) != sec.index {
			continue
		}
		// Keep the first name for aliased addresses.
		if seen[s.Value] {
			continue
		}
		seen[s.Value] = true
		out = append(out, Symbol{
			Name: demangleSymbol(s.Name),
			Raw:  s.Name,
			Addr: s.Value,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// demangleSymbol strips the Mach-O leading underscore from mangled names
// before demangling. Names that do not demangle are returned unchanged.
func demangleSymbol(name string) string {
	mangled := name
	if strings.HasPrefix(mangled, "__Z") || strings.HasPrefix(mangled, "__R") {
		mangled = mangled[1:]
	}
	demangled := demangle.Filter(mangled, demangle.NoClones)
	if demangled == "" || demangled == mangled {
		return name
	}
	return demangled
}
