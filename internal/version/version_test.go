package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuildVars(t *testing.T, version, tag, commit, dirty string) {
	t.Helper()
	oldV, oldT, oldC, oldD := Version, GitTag, GitCommit, GitDirty
	t.Cleanup(func() { Version, GitTag, GitCommit, GitDirty = oldV, oldT, oldC, oldD })
	Version, GitTag, GitCommit, GitDirty = version, tag, commit, dirty
}

func TestInfo(t *testing.T) {
	withBuildVars(t, "1.2.0", "", "unknown", "")
	assert.Equal(t, "1.2.0", Info())

	withBuildVars(t, "1.2.0", "v1.3.0", "unknown", "")
	assert.Equal(t, "v1.3.0", Info())

	withBuildVars(t, "1.2.0", "v1.3.0-dirty", "unknown", "true")
	assert.Equal(t, "v1.3.0-dirty", Info())

	withBuildVars(t, "dev", "", "unknown", "true")
	assert.Equal(t, "dev-dirty", Info())
}

func TestFull(t *testing.T) {
	withBuildVars(t, "1.0.0", "", "abcdef0123456789", "")
	assert.Equal(t, "1.0.0 (abcdef0)", Full())

	withBuildVars(t, "1.0.0", "", "abc", "")
	assert.Equal(t, "1.0.0 (abc)", Full())
}

func TestUserAgent(t *testing.T) {
	withBuildVars(t, "2.0.0", "", "unknown", "")
	assert.Equal(t, "docquery/2.0.0", UserAgent())
}

func TestGetBuildInfo(t *testing.T) {
	withBuildVars(t, "2.0.0", "v2.0.0", "deadbeef", "true")
	info := GetBuildInfo()
	assert.Equal(t, "v2.0.0-dirty", info.Version)
	assert.Equal(t, "deadbeef", info.GitCommit)
	assert.True(t, info.GitDirty)
	assert.NotEmpty(t, info.GoVersion)
}
