package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credvault/credvault/pkg/record"
	"github.com/credvault/credvault/pkg/transfer"
)

func TestExportImportRoundTrip(t *testing.T) {
	src, _ := setupTestVault(t)
	for _, name := range []string{"GitHub", "Email", "Bank"} {
		_, err := src.Create(testCredential(name))
		require.NoError(t, err)
	}

	data, err := src.Export("json", false)
	require.NoError(t, err)
	assert.Contains(t, string(data), "secret-GitHub")

	dst, _ := setupTestVault(t)
	imported, skipped, err := dst.Import(data)
	require.NoError(t, err)
	assert.Equal(t, 3, imported)
	assert.Equal(t, 0, skipped)

	entries, failures, err := dst.List("")
	require.NoError(t, err)
	require.Empty(t, failures)
	require.Len(t, entries, 3)
}

func TestExportEncrypted(t *testing.T) {
	v, _ := setupTestVault(t)
	_, err := v.Create(testCredential("GitHub"))
	require.NoError(t, err)

	data, err := v.Export("json", true)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-GitHub")

	// The same vault can read its own encrypted export back.
	imported, skipped, err := v.Import(data)
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 1, skipped)

	// A vault with a different master password cannot.
	other, _ := newTestVault(t, 0)
	require.NoError(t, other.Setup("Another-Passw0rd!", "Another-Passw0rd!"))
	_, _, err = other.Import(data)
	require.Error(t, err)
}

func TestImportSkipsDuplicates(t *testing.T) {
	v, _ := setupTestVault(t)
	_, err := v.Create(testCredential("GitHub"))
	require.NoError(t, err)

	// Same name, different username: not a duplicate. Duplicate match is
	// case-sensitive, so a case variant imports too.
	payload := `[
		{"name":"GitHub","username":"user@GitHub","password":"p","category":"other"},
		{"name":"GitHub","username":"second","password":"p","category":"other"},
		{"name":"github","username":"user@GitHub","password":"p","category":"other"}
	]`
	imported, skipped, err := v.Import([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 1, skipped)

	// Re-importing the same payload is a full skip.
	imported, skipped, err = v.Import([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 3, skipped)
}

func TestImportRejectsInvalid(t *testing.T) {
	v, _ := setupTestVault(t)

	_, _, err := v.Import([]byte(`{"version":"9.9","encrypted":false,"data":[]}`))
	assert.ErrorIs(t, err, transfer.ErrUnsupportedVersion)

	_, _, err = v.Import([]byte(`[{"name":"","username":"u","password":"p","category":"other"}]`))
	assert.ErrorIs(t, err, record.ErrEmptyName)
}

func TestExportCSV(t *testing.T) {
	v, _ := setupTestVault(t)
	c := testCredential("Bank")
	c.Notes = "joint, shared"
	_, err := v.Create(c)
	require.NoError(t, err)

	data, err := v.Export("csv", false)
	require.NoError(t, err)
	out := string(data)
	require.True(t, strings.HasPrefix(out, "name,username,password,website,category,notes,favorite\n"))
	assert.Contains(t, out, `"joint, shared"`)

	_, err = v.Export("csv", true)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = v.Export("yaml", false)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
