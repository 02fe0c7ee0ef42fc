// Package policy holds the single permission table consulted by every
// handler before any state is read for mutation.
package policy

// Resource is the kind of record an operation targets.
type Resource string

const (
	ResourceUser Resource = "user"
	ResourceBook Resource = "book"
	ResourceLoan Resource = "loan"
	ResourceAuth Resource = "auth"
)

// Operation is what the actor wants to do with a resource.
type Operation string

const (
	OpCreate  Operation = "create"
	OpRead    Operation = "read"
	OpList    Operation = "list"
	OpListOwn Operation = "list_own"
	OpReadOwn Operation = "read_own"
	OpUpdate  Operation = "update"
	OpDelete  Operation = "delete"
	OpReturn  Operation = "return"
)

// Decision is the outcome of Decide.
type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

// role is a bit set of the actor classes a rule admits.
type role uint8

const (
	anonymous role = 1 << iota
	member
	admin

	everyone      = anonymous | member | admin
	authenticated = member | admin
)

var table = map[Resource]map[Operation]role{
	ResourceUser: {
		OpCreate: everyone,
		OpRead:   admin,
		OpList:   admin,
		OpUpdate: admin,
		OpDelete: admin,
	},
	ResourceBook: {
		OpRead:   everyone,
		OpList:   everyone,
		OpCreate: admin,
		OpUpdate: admin,
		OpDelete: admin,
	},
	ResourceLoan: {
		OpCreate:  authenticated,
		OpRead:    authenticated,
		OpList:    admin,
		OpListOwn: authenticated,
		OpReturn:  admin,
		OpUpdate:  admin,
		OpDelete:  admin,
	},
	ResourceAuth: {
		OpCreate:  everyone,
		OpRead:    everyone,
		OpReadOwn: authenticated,
		OpDelete:  everyone,
	},
}

// Decide reports whether actor may perform op on res. Pairs missing from the
// table are denied.
func Decide(actor Actor, op Operation, res Resource) Decision {
	ops, ok := table[res]
	if !ok {
		return Deny
	}
	allowed, ok := ops[op]
	if !ok {
		return Deny
	}
	return Decision(allowed&actor.role() != 0)
}
