package querysql

import (
	"strconv"
	"strings"
	"unicode"
)

// aliasGenerator hands out group stems per leading letter.
//
// Every table group gets a stem made of a letter and a number ("c1", "c2");
// its physical table references append an index ("c1_0", "c1_1"). Stems are
// unique within a statement, so aliases from different scopes never clash
// even when a subquery is correlated with its parent. A generator belongs
// to one translation and is not shared between goroutines.
type aliasGenerator struct {
	counters map[string]int64
}

func newAliasGenerator() *aliasGenerator {
	return &aliasGenerator{counters: make(map[string]int64)}
}

// stem returns the next group stem for a name: "Contact" gives "c1", then
// "c2"; "alternativeContact" gives "a1".
func (g *aliasGenerator) stem(name string) string {
	letter := "t"
	for _, r := range name {
		if unicode.IsLetter(r) {
			letter = strings.ToLower(string(r))
			break
		}
	}
	g.counters[letter]++
	return letter + itoa(g.counters[letter])
}

// tableAliases hands out the physical aliases of one group.
type tableAliases struct {
	stem string
	next int
}

func (a *tableAliases) alias() string {
	s := a.stem + "_" + itoa(int64(a.next))
	a.next++
	return s
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
