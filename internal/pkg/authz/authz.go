// Package authz decides whether a role may perform an action on an object,
// using a casbin RBAC model with policies supplied by configuration.
package authz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

// ErrInvalidPolicy is returned for a policy line that is not "p,sub,obj,act" or "g,child,parent".
var ErrInvalidPolicy = errors.New("authz: invalid policy line")

// Authorizer answers permission checks.
type Authorizer interface {
	Allow(sub, obj, act string) (bool, error)
}

// Casbin implements Authorizer on an in-memory casbin enforcer.
type Casbin struct {
	enforcer *casbin.Enforcer
}

// NewCasbin builds the enforcer and loads lines such as
// "p,org_admin,notification.org_settings,write" or "g,owner,org_admin".
func NewCasbin(lines []string) (*Casbin, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	for _, line := range lines {
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch {
		case len(parts) == 4 && parts[0] == "p":
			_, err = e.AddPolicy(parts[1], parts[2], parts[3])
		case len(parts) == 3 && parts[0] == "g":
			_, err = e.AddGroupingPolicy(parts[1], parts[2])
		default:
			err = fmt.Errorf("%w: %q", ErrInvalidPolicy, line)
		}
		if err != nil {
			return nil, err
		}
	}

	return &Casbin{enforcer: e}, nil
}

// Allow reports whether sub may perform act on obj. An empty subject is always denied.
func (c *Casbin) Allow(sub, obj, act string) (bool, error) {
	if sub == "" {
		return false, nil
	}
	return c.enforcer.Enforce(sub, obj, act)
}
