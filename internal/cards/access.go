package cards

// access.go defines the role capability table for card mutations: which
// columns each role may write. Handlers resolve the set once per request and
// filter update payloads against it, instead of matching column names ad hoc.

// Role identifies a caller's access level.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleAgent    Role = "agent"
	RoleViewer   Role = "viewer"
)

// writableByRole is the capability table. Columns absent from a role's set
// are silently dropped from update payloads.
var writableByRole = map[Role]map[string]bool{
	RoleAdmin: {
		ColEnrollmentLocation:     true,
		ColWithdrawalSite:         true,
		ColStorageLocation:        true,
		ColLastName:               true,
		ColFirstNames:             true,
		ColBirthDate:              true,
		ColBirthPlace:             true,
		ColContactPhone:           true,
		ColDeliveryStatus:         true,
		ColWithdrawalContactPhone: true,
		ColDeliveryDate:           true,
	},
	RoleOperator: {
		ColEnrollmentLocation:     true,
		ColWithdrawalSite:         true,
		ColStorageLocation:        true,
		ColBirthDate:              true,
		ColBirthPlace:             true,
		ColContactPhone:           true,
		ColDeliveryStatus:         true,
		ColWithdrawalContactPhone: true,
		ColDeliveryDate:           true,
	},
	RoleAgent: {
		ColDeliveryStatus: true,
		ColDeliveryDate:   true,
	},
	RoleViewer: {},
}

// ParseRole maps a raw claim value to a known role, defaulting to viewer.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin, RoleOperator, RoleAgent, RoleViewer:
		return Role(s)
	default:
		return RoleViewer
	}
}

// Writable returns the set of columns the role may update.
// The returned map must not be mutated.
func Writable(r Role) map[string]bool {
	if cols, ok := writableByRole[r]; ok {
		return cols
	}
	return writableByRole[RoleViewer]
}

// FilterWritable returns the subset of fields the role may write, and the
// names of columns that were rejected.
func FilterWritable(r Role, fields map[string]string) (map[string]string, []string) {
	allowed := Writable(r)
	kept := make(map[string]string, len(fields))
	var rejected []string
	for col, val := range fields {
		if allowed[col] {
			kept[col] = val
		} else {
			rejected = append(rejected, col)
		}
	}
	return kept, rejected
}

// CanImport reports whether the role may run bulk imports.
func CanImport(r Role) bool {
	return r == RoleAdmin || r == RoleOperator
}
