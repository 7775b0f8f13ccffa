package authz

// Permission codes. These are persisted as override references, so they are
// a compatibility surface: never rename an existing code.
const (
	PermAll = "ALL"

	PermUserAdmin       = "U"
	PermListUsers       = "U_L"
	PermCreateUser      = "U_C"
	PermEditUser        = "U_E"
	PermManageOverrides = "U_O"
	PermDeactivateUser  = "U_D"

	PermGraph        = "G"
	PermViewGraph    = "G_V"
	PermEditGraph    = "G_E"
	PermPublishGraph = "G_P"

	PermProviderRegistry = "PR"
	PermViewProviders    = "PR_V"
	PermEditProviders    = "PR_E"

	PermModelRegistry = "MR"
	PermViewModels    = "MR_V"
	PermEditModels    = "MR_E"

	PermOperations     = "OPS"
	PermViewMetrics    = "OPS_M"
	PermManageSessions = "OPS_S"
)

// Roles.
const (
	RoleAdmin          Role = "admin"
	RoleOperationAdmin Role = "operation_admin"
	RoleUserAdmin      Role = "user_admin"
	RoleViewer         Role = "viewer"
)

var catalogTable = NodeSpec{
	Code: PermAll, Name: "All capabilities",
	Children: []NodeSpec{
		{Code: PermUserAdmin, Name: "User administration", Children: []NodeSpec{
			{Code: PermListUsers, Name: "List users"},
			{Code: PermCreateUser, Name: "Create users"},
			{Code: PermEditUser, Name: "Edit users"},
			{Code: PermManageOverrides, Name: "Manage permission overrides"},
			{Code: PermDeactivateUser, Name: "Deactivate users"},
		}},
		{Code: PermGraph, Name: "Routing graph", Children: []NodeSpec{
			{Code: PermViewGraph, Name: "View routing graph"},
			{Code: PermEditGraph, Name: "Edit routing graph"},
			{Code: PermPublishGraph, Name: "Publish routing graph"},
		}},
		{Code: PermProviderRegistry, Name: "Provider registry", Children: []NodeSpec{
			{Code: PermViewProviders, Name: "View providers"},
			{Code: PermEditProviders, Name: "Edit providers"},
		}},
		{Code: PermModelRegistry, Name: "Model registry", Children: []NodeSpec{
			{Code: PermViewModels, Name: "View models"},
			{Code: PermEditModels, Name: "Edit models"},
		}},
		{Code: PermOperations, Name: "Operations", Children: []NodeSpec{
			{Code: PermViewMetrics, Name: "View metrics"},
			{Code: PermManageSessions, Name: "Manage sessions"},
		}},
	},
}

var roleSeeds = map[Role][]string{
	RoleAdmin:          {PermAll},
	RoleOperationAdmin: {PermGraph, PermProviderRegistry, PermModelRegistry},
	RoleUserAdmin:      {PermUserAdmin},
	RoleViewer:         {PermViewGraph, PermViewProviders, PermViewModels, PermViewMetrics},
}

// DefaultCatalog returns the gatewise permission catalog. Panics on a broken
// table, which aborts startup before any request is served.
func DefaultCatalog() *Catalog {
	return MustCatalog(catalogTable)
}

// DefaultRoleCatalog returns the gatewise role catalog bound to catalog.
func DefaultRoleCatalog(catalog *Catalog) *RoleCatalog {
	return MustRoleCatalog(catalog, roleSeeds)
}
