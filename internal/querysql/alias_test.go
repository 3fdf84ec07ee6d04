package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAliasGenerator_Stems(t *testing.T) {
	g := newAliasGenerator()
	var got []string
	for _, name := range []string{"Contact", "alternativeContact", "Contact", "_items", "9", "cte"} {
		got = append(got, g.stem(name))
	}
	assert.Equal(t, []string{"c1", "a1", "c2", "i1", "t1", "c3"}, got)

	aliases := &tableAliases{stem: "c2"}
	assert.Equal(t, "c2_0", aliases.alias())
	assert.Equal(t, "c2_1", aliases.alias())
}
