// Package prompts holds the initial operating instructions for each role.
// The reflection engine rewrites instructions over time; these embedded
// texts are the fallback whenever no rewritten version is stored yet.
package prompts

import (
	_ "embed"

	"github.com/k-taniguchi/sidekick/pkg/model"
)

//go:embed prompt/primary.md
var primaryRaw string

//go:embed prompt/status.md
var statusRaw string

//go:embed prompt/activity.md
var activityRaw string

//go:embed prompt/archivist.md
var archivistRaw string

// Default returns the initial instruction set for a role.
func Default(role model.Role) string {
	switch role {
	case model.RolePrimary:
		return primaryRaw
	case model.RoleStatus:
		return statusRaw
	case model.RoleActivity:
		return activityRaw
	case model.RoleArchivist:
		return archivistRaw
	default:
		return primaryRaw
	}
}
