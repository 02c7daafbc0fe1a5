package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoString(t *testing.T) {
	i := Info{Version: "dev", CommitHash: "abc", BuildTime: "now"}
	assert.Equal(t, "exportsync dev (commit abc, built now)", i.String())

	i.Version = "v1.2.0"
	assert.Equal(t, "exportsync v1.2.0 (commit abc, built now)", i.String())
}

func TestShortAndUserAgent(t *testing.T) {
	i := Info{Version: "v1.2.0", CommitHash: "0123456789abcdef"}
	assert.Equal(t, "0123456", i.Short())
	assert.Equal(t, "exportsync/v1.2.0+0123456", i.UserAgentSuffix())

	assert.Equal(t, "dev", Info{CommitHash: "dev"}.Short())
}

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, CommitHash, info.CommitHash)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}
