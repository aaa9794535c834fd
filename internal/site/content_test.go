package site

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedProfile(t *testing.T) {
	profile, err := LoadProfile("")
	require.NoError(t, err)

	assert.Equal(t, "Ibrahim Alshekh", profile.Name)
	assert.Len(t, profile.Stack.Items, 6)
	assert.Len(t, profile.Socials, 7)
	assert.Equal(t, "Laravel · Inertia.js · React · TypeScript · Tailwind CSS · PostgreSQL", profile.StackLine())
}

func TestLoadProfileFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	doc := "name: Jane Doe\nsocials:\n  - label: GitHub\n    href: https://github.com/jane\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	profile, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", profile.Title, "title falls back to name")
	assert.Empty(t, profile.StackLine())
}

func TestParseProfileRejectsIncompleteContent(t *testing.T) {
	cases := map[string]string{
		"missing name":    "socials:\n  - label: X\n    href: https://x.com\n",
		"missing socials": "name: Jane\n",
		"broken link":     "name: Jane\nsocials:\n  - label: X\n",
		"invalid yaml":    "name: [unterminated\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProfile([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
