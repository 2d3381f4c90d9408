package registry

import (
	"errors"
	"time"
)

// UngroupedBucket is the order-ledger key for scripts that belong to no
// group. BucketAll addresses the flat script list itself rather than a
// group.
const (
	UngroupedBucket = "ungrouped"
	BucketAll       = "all"
)

var (
	ErrScriptExists   = errors.New("script id already exists")
	ErrScriptNotFound = errors.New("script not found")
	ErrGroupExists    = errors.New("group id already exists")
	ErrGroupNotFound  = errors.New("group not found")
)

// ScriptConfig is the persisted definition of one supervised command.
// The script id is the registry map key, not a field.
type ScriptConfig struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	WorkDir     string `json:"working_dir"`
	AutoRestart bool   `json:"auto_restart"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// Group is a named, ordered collection of script ids. Purely
// organizational; membership has no behavioral effect.
type Group struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// GroupInfo is the read model returned to callers: group fields plus the
// member ids in display order.
type GroupInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	ScriptCount int       `json:"script_count"`
	Scripts     []string  `json:"scripts"`
}
