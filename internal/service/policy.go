package service

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"manuscript-review/internal/models"

	"gopkg.in/yaml.v3"
)

// Operations guarded by the policy table
const (
	OpSubmissionCreate           = "submission.create"
	OpSubmissionView             = "submission.view"
	OpSubmissionList             = "submission.list"
	OpSubmissionFinalize         = "submission.finalize"
	OpSubmissionUpdateManuscript = "submission.update_manuscript"
	OpSubmissionDecide           = "submission.decide"
	OpSubmissionResubmit         = "submission.resubmit"
	OpSubmissionEvents           = "submission.events"
	OpAuditVerify                = "audit.verify"
	OpRoundOpen                  = "round.open"
	OpRoundClose                 = "round.close"
	OpRoundView                  = "round.view"
	OpRoundOutcome               = "round.outcome"
	OpAssignmentAssign           = "assignment.assign"
	OpAssignmentRespond          = "assignment.respond"
	OpAssignmentRemove           = "assignment.remove"
	OpAssignmentList             = "assignment.list"
	OpMessagePost                = "message.post"
	OpMessageRespond             = "message.respond"
	OpMessageCount               = "message.count"
)

var knownOperations = map[string]bool{
	OpSubmissionCreate: true, OpSubmissionView: true, OpSubmissionList: true,
	OpSubmissionFinalize: true, OpSubmissionUpdateManuscript: true, OpSubmissionDecide: true,
	OpSubmissionResubmit: true, OpSubmissionEvents: true, OpAuditVerify: true,
	OpRoundOpen: true, OpRoundClose: true, OpRoundView: true, OpRoundOutcome: true,
	OpAssignmentAssign: true, OpAssignmentRespond: true, OpAssignmentRemove: true, OpAssignmentList: true,
	OpMessagePost: true, OpMessageRespond: true, OpMessageCount: true,
}

// Relation names usable in the policy file
const (
	RelationAny      = "any"
	RelationOwner    = "owner"
	RelationAssignee = "assignee"
)

// Relation describes how an actor relates to the resource being acted on
type Relation struct {
	Owner    bool
	Assignee bool
}

//go:embed policy.yaml
var defaultPolicyYAML []byte

type policyFile struct {
	Rules map[string]map[models.Role][]string `yaml:"rules"`
}

// Policy is the (operation, role, relation) authorization table
type Policy struct {
	rules map[string]map[models.Role][]string
}

// DefaultPolicy returns the embedded authorization table
func DefaultPolicy() *Policy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded policy is invalid: %v", err))
	}
	return p
}

// LoadPolicy reads a policy file, falling back to the embedded table when path is empty
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML authorization table
func ParsePolicy(data []byte) (*Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("policy defines no rules")
	}

	for op, roles := range file.Rules {
		if !knownOperations[op] {
			return nil, fmt.Errorf("policy: unknown operation %q", op)
		}
		for role, relations := range roles {
			if !role.Valid() {
				return nil, fmt.Errorf("policy: %s: unknown role %q", op, role)
			}
			if len(relations) == 0 {
				return nil, fmt.Errorf("policy: %s: role %s lists no relations", op, role)
			}
			for _, rel := range relations {
				switch rel {
				case RelationAny, RelationOwner, RelationAssignee:
				default:
					return nil, fmt.Errorf("policy: %s: role %s: unknown relation %q", op, role, rel)
				}
			}
		}
	}

	return &Policy{rules: file.Rules}, nil
}

// Allowed reports whether the actor may perform the operation
func (p *Policy) Allowed(operation string, actor models.Actor, rel Relation) bool {
	for _, name := range p.rules[operation][actor.Role] {
		switch name {
		case RelationAny:
			return true
		case RelationOwner:
			if rel.Owner {
				return true
			}
		case RelationAssignee:
			if rel.Assignee {
				return true
			}
		}
	}
	return false
}

// Authorize returns a forbidden error unless the operation is allowed
func (p *Policy) Authorize(operation string, actor models.Actor, rel Relation) error {
	if !p.Allowed(operation, actor, rel) {
		return forbidden(operation, actor)
	}
	return nil
}

// Roles lists the roles with any grant for an operation, sorted
func (p *Policy) Roles(operation string) []models.Role {
	var roles []models.Role
	for role := range p.rules[operation] {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
