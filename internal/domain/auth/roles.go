package auth

// Role names and hierarchy levels. Tier checks always compare levels,
// never names; the names exist for seeding and display.
const (
	RoleEmployee = "Employee"
	RoleLead     = "Lead"
	RoleManager  = "Manager"
	RoleCEO      = "CEO"
	RoleAdmin    = "Admin"
)

const (
	LevelEmployee = 1
	LevelLead     = 2
	LevelManager  = 3
	LevelCEO      = 4
	LevelAdmin    = 5
)

// RoleLevels maps each role name to its hierarchy level; it drives seeding
// and is the only place the pairing is written down.
var RoleLevels = map[string]int{
	RoleEmployee: LevelEmployee,
	RoleLead:     LevelLead,
	RoleManager:  LevelManager,
	RoleCEO:      LevelCEO,
	RoleAdmin:    LevelAdmin,
}
