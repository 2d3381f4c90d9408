package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeBase(t *testing.T) {
	assert.Equal(t, "", sanitizeBase(""))
	assert.Equal(t, "", sanitizeBase("/"))
	assert.Equal(t, "/dawson", sanitizeBase("dawson"))
	assert.Equal(t, "/dawson", sanitizeBase("/dawson/"))
	assert.Equal(t, "/a/b", sanitizeBase(" /a/b "))
}

func TestIsSafeID(t *testing.T) {
	assert.True(t, isSafeID("job-1"))
	assert.True(t, isSafeID("my.worker_2"))
	assert.False(t, isSafeID(""))
	assert.False(t, isSafeID("../etc"))
	assert.False(t, isSafeID("a/b"))
	assert.False(t, isSafeID("a b"))
	assert.False(t, isSafeID("héllo"))
}
