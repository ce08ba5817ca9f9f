package assist

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/k-taniguchi/sidekick/pkg/model"
)

// transitions is the closed handoff table. The primary role can hand
// off to any specialist; specialists only return to primary. Adding a
// role means adding a row here.
var transitions = map[model.Role][]model.Role{
	model.RolePrimary:   {model.RoleStatus, model.RoleActivity, model.RoleArchivist},
	model.RoleStatus:    {model.RolePrimary},
	model.RoleActivity:  {model.RolePrimary},
	model.RoleArchivist: {model.RolePrimary},
}

// route selects the role that handles an inbound message. A new session
// enters at primary; an established session stays with its active role
// until a handoff directive moves it.
func route(session *model.Session) model.Role {
	if session.ActiveRole.Valid() {
		return session.ActiveRole
	}
	return model.RolePrimary
}

// applyHandoff validates a consumed directive against the transition
// table and returns the next role.
func applyHandoff(from, to model.Role) (model.Role, error) {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return to, nil
		}
	}
	return from, goerr.New("handoff not allowed",
		goerr.V("from", from), goerr.V("to", to))
}
