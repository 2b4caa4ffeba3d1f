// Package words provides the per-mode word lists that prompts are drawn from.
//
// Every participant must hold the exact same list for a mode, in the same
// order, or seeded prompt regeneration breaks. Lists ship embedded and can be
// overridden from a directory of <mode>.txt files.
package words

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

//go:embed data/*.txt
var defaultLists embed.FS

type Mode string

const (
	ModeShort  = Mode("short")
	ModeMedium = Mode("medium")
	ModeLong   = Mode("long")
	ModeMixed  = Mode("mixed")
)

var Modes = []Mode{ModeShort, ModeMedium, ModeLong, ModeMixed}

// wordCounts is the fixed prompt length per mode, shared with the client.
var wordCounts = map[Mode]int{
	ModeShort:  25,
	ModeMedium: 30,
	ModeLong:   30,
	ModeMixed:  40,
}

func ValidMode(m string) bool {
	_, ok := wordCounts[Mode(m)]
	return ok
}

// WordCount returns the number of words a prompt in this mode contains.
func WordCount(m Mode) int {
	return wordCounts[m]
}

// Provider holds the loaded lists, one per mode. Lists are read once at
// startup and never mutated afterwards, so lookups need no locking.
type Provider struct {
	lists map[Mode][]string
}

// Load reads word lists from dir, or the embedded defaults when dir is empty.
func Load(dir string) (*Provider, error) {
	p := &Provider{lists: make(map[Mode][]string, len(Modes))}

	for _, mode := range Modes {
		var (
			raw []byte
			err error
		)
		if dir == "" {
			raw, err = defaultLists.ReadFile("data/" + string(mode) + ".txt")
		} else {
			raw, err = os.ReadFile(filepath.Join(dir, string(mode)+".txt"))
		}
		if err != nil {
			return nil, fmt.Errorf("loading %s word list: %w", mode, err)
		}

		list := normalize(strings.Split(string(raw), "\n"))
		if len(list) == 0 {
			return nil, fmt.Errorf("word list %s is empty", mode)
		}
		p.lists[mode] = list
	}
	return p, nil
}

// List returns the ordered, deduplicated, lower-cased list for a mode.
func (p *Provider) List(m Mode) []string {
	return p.lists[m]
}

// normalize trims, lower-cases, and drops blanks and duplicates while
// preserving first-seen order.
func normalize(raw []string) []string {
	trimmed := lo.FilterMap(raw, func(w string, _ int) (string, bool) {
		w = strings.ToLower(strings.TrimSpace(w))
		return w, w != ""
	})
	return lo.Uniq(trimmed)
}
