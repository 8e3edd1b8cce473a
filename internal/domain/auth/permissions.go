package auth

const (
	PermAppraisalsRead     = "appraisals.read"
	PermAppraisalsWrite    = "appraisals.write"
	PermAppraisalsEvaluate = "appraisals.evaluate"
	PermAppraisalsReview   = "appraisals.review"
	PermDirectoryRead      = "directory.read"
	PermReportsRead        = "reports.read"
	PermAuditRead          = "audit.read"
	PermSystemAdmin        = "admin.system"
)

var DefaultPermissions = []string{
	PermAppraisalsRead,
	PermAppraisalsWrite,
	PermAppraisalsEvaluate,
	PermAppraisalsReview,
	PermDirectoryRead,
	PermReportsRead,
	PermAuditRead,
	PermSystemAdmin,
}

// RolePermissions is the coarse route-level grant per role. The fine-grained
// rules (which party may write which field in which status) live in the
// appraisal domain; these only decide whether a route is reachable at all.
var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermAppraisalsRead,
		PermAppraisalsEvaluate,
		PermDirectoryRead,
	},
	RoleLead: {
		PermAppraisalsRead,
		PermAppraisalsWrite,
		PermAppraisalsEvaluate,
		PermDirectoryRead,
	},
	RoleManager: {
		PermAppraisalsRead,
		PermAppraisalsWrite,
		PermAppraisalsEvaluate,
		PermAppraisalsReview,
		PermDirectoryRead,
		PermReportsRead,
	},
	RoleCEO: {
		PermAppraisalsRead,
		PermAppraisalsWrite,
		PermAppraisalsEvaluate,
		PermAppraisalsReview,
		PermDirectoryRead,
		PermReportsRead,
	},
	RoleAdmin: {
		PermAppraisalsRead,
		PermAppraisalsWrite,
		PermAppraisalsEvaluate,
		PermAppraisalsReview,
		PermDirectoryRead,
		PermReportsRead,
		PermAuditRead,
		PermSystemAdmin,
	},
}
