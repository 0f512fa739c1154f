package auth

// Builtin permission names.
const (
	PermOptimizationCreate = "Create Optimization Run"
	PermOptimizationRead   = "Read Optimization Run"
	PermOptimizationDelete = "Delete Optimization Run"
	PermWebhookCreate      = "Create Webhook"
	PermWebhookRead        = "Read Webhook"
	PermWebhookUpdate      = "Update Webhook"
	PermWebhookDelete      = "Delete Webhook"
	PermTeamRead           = "Read Team"
	PermTeamUpdate         = "Update Team"
	PermTeamManageMembers  = "Manage Team Members"
	PermUserRead           = "Read Users"
	PermUserUpdate         = "Update Users"
	PermAuditRead          = "Read Audit Logs"
	PermAuditExport        = "Export Audit Logs"
	PermAdminAll           = "Full Admin Access"
)

// Builtin system role names.
const (
	RoleAdmin    = "Admin"
	RoleOperator = "Operator"
	RoleViewer   = "Viewer"
)

// BuiltinPermissions is the permission catalog seeded by EnsureBuiltins.
var BuiltinPermissions = []Permission{
	{Name: PermOptimizationCreate, Description: "Create new optimization runs", Resource: "optimization", Action: "create"},
	{Name: PermOptimizationRead, Description: "View optimization runs and results", Resource: "optimization", Action: "read"},
	{Name: PermOptimizationDelete, Description: "Delete optimization runs", Resource: "optimization", Action: "delete"},
	{Name: PermWebhookCreate, Description: "Create webhook configurations", Resource: "webhook", Action: "create"},
	{Name: PermWebhookRead, Description: "View webhook configurations", Resource: "webhook", Action: "read"},
	{Name: PermWebhookUpdate, Description: "Update webhook configurations", Resource: "webhook", Action: "update"},
	{Name: PermWebhookDelete, Description: "Delete webhook configurations", Resource: "webhook", Action: "delete"},
	{Name: PermTeamRead, Description: "View team information", Resource: "team", Action: "read"},
	{Name: PermTeamUpdate, Description: "Update team settings", Resource: "team", Action: "update"},
	{Name: PermTeamManageMembers, Description: "Add/remove team members", Resource: "team", Action: "manage_members"},
	{Name: PermUserRead, Description: "View user information", Resource: "user", Action: "read"},
	{Name: PermUserUpdate, Description: "Update user information", Resource: "user", Action: "update"},
	{Name: PermAuditRead, Description: "View audit logs", Resource: "audit", Action: "read"},
	{Name: PermAuditExport, Description: "Export audit logs", Resource: "audit", Action: "export"},
	{Name: PermAdminAll, Description: "Full administrative access to all resources", Resource: Wildcard, Action: Wildcard},
}

// BuiltinRole describes a seeded system role by permission name.
type BuiltinRole struct {
	Name        string
	Description string
	Permissions []string
}

// BuiltinRoles are the system roles seeded by EnsureBuiltins.
var BuiltinRoles = []BuiltinRole{
	{
		Name:        RoleAdmin,
		Description: "Full administrative access to team resources",
		Permissions: []string{PermAdminAll},
	},
	{
		Name:        RoleOperator,
		Description: "Can create and manage optimization runs and webhooks",
		Permissions: []string{
			PermOptimizationCreate, PermOptimizationRead, PermOptimizationDelete,
			PermWebhookCreate, PermWebhookRead, PermWebhookUpdate, PermWebhookDelete,
			PermTeamRead, PermAuditRead,
		},
	},
	{
		Name:        RoleViewer,
		Description: "Read-only access to team resources",
		Permissions: []string{PermOptimizationRead, PermWebhookRead, PermTeamRead, PermAuditRead},
	},
}
