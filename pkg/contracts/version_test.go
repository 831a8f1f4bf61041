package contracts

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, OutputFormatVersion, info.OutputFormat)

	banner := GetFullVersionString()
	assert.True(t, strings.HasPrefix(banner, "healthetl v"+Version))
	assert.Contains(t, banner, runtime.GOOS+"/"+runtime.GOARCH)
}
