package profile_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/cpupowerctl/internal/profile"
	"codeberg.org/mutker/cpupowerctl/internal/sysfs"
	"codeberg.org/mutker/cpupowerctl/internal/sysfs/sysfstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, systemFiles, userFiles map[string]string) *profile.Manager {
	t.Helper()

	root := sysfstest.Write(t, t.TempDir(),
		sysfstest.DefaultCPU(0), sysfstest.DefaultCPU(1),
		sysfstest.DefaultCPU(2), sysfstest.DefaultCPU(3))

	systemDir := t.TempDir()
	userDir := t.TempDir()
	for name, content := range systemFiles {
		require.NoError(t, os.WriteFile(filepath.Join(systemDir, name), []byte(content), 0o644))
	}
	for name, content := range userFiles {
		require.NoError(t, os.WriteFile(filepath.Join(userDir, name), []byte(content), 0o644))
	}

	return profile.NewManager(sysfs.NewWithRoot(root), systemDir, userDir)
}

func TestParseProfileFile(t *testing.T) {
	content := `# name: Gaming

# CPU	Min	Max	Governor	Online
0-1	1000	2800	performance	y
2	800	-	schedutil
3	-	-	powersave	n
`
	m := newManager(t, map[string]string{"gaming.profile": content}, nil)

	prof, err := m.Get("Gaming")
	require.NoError(t, err)
	assert.True(t, prof.System)
	assert.False(t, prof.Deletable())
	assert.Equal(t, []int{0, 1, 2, 3}, prof.CPUs())

	// MHz rows become kHz entries
	entry := prof.Settings[0]
	assert.Equal(t, 1000000, entry.FreqMin)
	assert.Equal(t, 2800000, entry.FreqMax)
	assert.Equal(t, "performance", entry.Governor)
	assert.True(t, entry.Online)

	// The range row covers both CPUs
	assert.Equal(t, prof.Settings[0].Governor, prof.Settings[1].Governor)

	// "-" falls back to the hardware limits of the fake tree
	entry = prof.Settings[2]
	assert.Equal(t, 800000, entry.FreqMin)
	assert.Equal(t, 3500000, entry.FreqMax)

	entry = prof.Settings[3]
	assert.Equal(t, 400000, entry.FreqMin)
	assert.Equal(t, 3500000, entry.FreqMax)
	assert.Empty(t, entry.Governor)
	assert.False(t, entry.Online)
}

func TestParseProfileNameFallsBackToFilename(t *testing.T) {
	content := "0 1000 2000 performance\n"
	m := newManager(t, map[string]string{"quiet.profile": content}, nil)

	_, err := m.Get("quiet")
	require.NoError(t, err)
}

func TestParseProfileSkipsMalformedRows(t *testing.T) {
	content := `# name: Partial
0 1000 2000 performance
this row is broken
nonsense 1000
1 800 1500 powersave
`
	m := newManager(t, map[string]string{"partial.profile": content}, nil)

	prof, err := m.Get("Partial")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, prof.CPUs())
}

func TestBuiltinProfiles(t *testing.T) {
	m := newManager(t, nil, nil)

	names := m.Names()
	assert.Contains(t, names, "Balanced")
	assert.Contains(t, names, "Performance")
	assert.Contains(t, names, "Powersave")
	assert.Contains(t, names, "Schedutil")

	balanced, err := m.Get("Balanced")
	require.NoError(t, err)
	assert.True(t, balanced.Builtin)
	assert.False(t, balanced.Deletable())

	// schedutil wins over ondemand and powersave when available
	entry := balanced.Settings[0]
	assert.Equal(t, "schedutil", entry.Governor)
	assert.Equal(t, 400000, entry.FreqMin)
	assert.Equal(t, 3500000, entry.FreqMax)
	assert.True(t, entry.Online)
}

func TestCreateAndReloadProfile(t *testing.T) {
	m := newManager(t, nil, nil)

	entries := []profile.Entry{
		{CPU: 0, FreqMin: 1000000, FreqMax: 2000000, Governor: "powersave", Online: true},
		{CPU: 1, Online: false},
	}
	require.NoError(t, m.Create("My Quiet Mode", entries))

	prof, err := m.Get("My Quiet Mode")
	require.NoError(t, err)
	assert.True(t, prof.Deletable())
	assert.Equal(t, "cpg-My-Quiet-Mode.profile", filepath.Base(prof.FilePath))

	// The saved file survives a reload
	m.Reload()
	prof, err = m.Get("My Quiet Mode")
	require.NoError(t, err)
	assert.Equal(t, 1000000, prof.Settings[0].FreqMin)
	assert.Equal(t, "powersave", prof.Settings[0].Governor)
	assert.False(t, prof.Settings[1].Online)
}

func TestCreateRejectsProtectedNames(t *testing.T) {
	m := newManager(t, nil, nil)

	err := m.Create("Balanced", []profile.Entry{{CPU: 0, Online: true}})
	require.Error(t, err)

	err = m.Create("", []profile.Entry{{CPU: 0, Online: true}})
	require.Error(t, err)
}

func TestDeleteProfile(t *testing.T) {
	m := newManager(t, nil, nil)

	require.NoError(t, m.Create("Scratch", []profile.Entry{{CPU: 0, Online: true}}))
	prof, err := m.Get("Scratch")
	require.NoError(t, err)

	require.NoError(t, m.Delete("Scratch"))
	_, err = m.Get("Scratch")
	require.Error(t, err)

	_, statErr := os.Stat(prof.FilePath)
	assert.True(t, os.IsNotExist(statErr))

	// Builtins are not deletable
	require.Error(t, m.Delete("Balanced"))
	require.Error(t, m.Delete("no-such-profile"))
}
