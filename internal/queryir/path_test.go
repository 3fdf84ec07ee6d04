package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *Path
	}{
		{
			name:  "alias only",
			input: "c",
			want:  &Path{Alias: "c", Steps: []Step{}},
		},
		{
			name:  "dotted attributes",
			input: "c.alternativeContact.name.first",
			want: &Path{Alias: "c", Steps: []Step{
				{Attribute: "alternativeContact"}, {Attribute: "name"}, {Attribute: "first"},
			}},
		},
		{
			name:  "treat then attribute",
			input: "treat(c as SpecialContact).specialField",
			want: &Path{Alias: "c", Steps: []Step{
				{Treat: "SpecialContact"}, {Attribute: "specialField"},
			}},
		},
		{
			name:  "nested treat",
			input: "treat(treat(c as SpecialContact) as VerySpecialContact).level",
			want: &Path{Alias: "c", Steps: []Step{
				{Treat: "SpecialContact"}, {Treat: "VerySpecialContact"}, {Attribute: "level"},
			}},
		},
		{
			name:  "index part",
			input: "index(n)",
			want:  &Path{Alias: "n", Steps: []Step{{Part: PartIndex}}},
		},
		{
			name:  "key is index",
			input: "key(n)",
			want:  &Path{Alias: "n", Steps: []Step{{Part: PartIndex}}},
		},
		{
			name:  "element part",
			input: "value(t)",
			want:  &Path{Alias: "t", Steps: []Step{{Part: PartElement}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Alias, got.Alias)
			assert.Equal(t, tt.want.Steps, append([]Step{}, got.Steps...))
		})
	}
}

func TestParsePath_Errors(t *testing.T) {
	for _, input := range []string{
		"",
		"c..name",
		"treat(c SpecialContact)",
		"treat(c as )",
		"frob(c)",
		"index(n)x",
		"c.na me",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParsePath(input)
			assert.Error(t, err)
		})
	}
}

func TestPath_StringRoundTrip(t *testing.T) {
	attrs := []string{"name", "first", "alternativeContact", "specialField"}
	entities := []string{"SpecialContact", "VerySpecialContact"}

	rapid.Check(t, func(t *rapid.T) {
		p := &Path{Alias: rapid.SampledFrom([]string{"c", "o", "l1"}).Draw(t, "alias")}
		n := rapid.IntRange(0, 5).Draw(t, "steps")
		for i := 0; i < n; i++ {
			switch rapid.IntRange(0, 3).Draw(t, "kind") {
			case 0:
				p.Steps = append(p.Steps, Step{Treat: rapid.SampledFrom(entities).Draw(t, "entity")})
			case 1:
				p.Steps = append(p.Steps, Step{Part: PartIndex})
			case 2:
				p.Steps = append(p.Steps, Step{Part: PartElement})
			default:
				p.Steps = append(p.Steps, Step{Attribute: rapid.SampledFrom(attrs).Draw(t, "attr")})
			}
		}

		parsed, err := ParsePath(p.String())
		if err != nil {
			t.Fatalf("parse %q: %v", p.String(), err)
		}
		if parsed.String() != p.String() {
			t.Fatalf("round trip: %q != %q", parsed.String(), p.String())
		}
	})
}

func TestPath_AttrDoesNotAlias(t *testing.T) {
	base := P("c.name")
	a := base.Attr("first")
	b := base.Attr("last")

	assert.Equal(t, "c.name.first", a.String())
	assert.Equal(t, "c.name.last", b.String())
	assert.Equal(t, "c.name", base.String())
}

func TestNavigablePath(t *testing.T) {
	root := NewRootPath("Contact", "c")
	alt := root.Append("alternativeContact")
	treated := root.Treat("SpecialContact")
	joined := root.AppendAliased("alternativeContact", "a")

	assert.Equal(t, "Contact(c)", root.Full())
	assert.Equal(t, "Contact(c).alternativeContact", alt.Full())
	assert.Equal(t, "Contact(c).alternativeContact(a)", joined.Full())
	assert.Equal(t, "Contact(c).{treat:SpecialContact}", treated.Full())

	assert.True(t, treated.IsTreat())
	assert.False(t, alt.IsTreat())
	assert.Same(t, root, alt.Parent())
	assert.Nil(t, root.Parent())
	assert.Equal(t, "a", joined.Alias())
	assert.Equal(t, "alternativeContact", joined.Local())

	// Equal keys for independently built paths.
	assert.Equal(t, alt.Full(), NewRootPath("Contact", "c").Append("alternativeContact").Full())
}
