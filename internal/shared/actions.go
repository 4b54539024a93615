package shared

// Action keys follow the `<category>-<verb>` convention used by the
// permission catalog.
const (
	PermAdminCreate = "admin-create"
	PermAdminView   = "admin-view"
	PermAdminUpdate = "admin-update"
	PermAdminDelete = "admin-delete"

	PermRolesCreate = "roles-create"
	PermRolesView   = "roles-view"
	PermRolesUpdate = "roles-update"
	PermRolesDelete = "roles-delete"

	PermPermissionsCreate = "permissions-create"
	PermPermissionsView   = "permissions-view"
	PermPermissionsUpdate = "permissions-update"
	PermPermissionsDelete = "permissions-delete"

	PermSettingsCreate = "settings-create"
	PermSettingsView   = "settings-view"
	PermSettingsUpdate = "settings-update"
	PermSettingsDelete = "settings-delete"
)

// Role values recognised by role-based gates.
const (
	RoleSuperadmin = "superadmin"
	RoleAdmin      = "admin"
)

// CoreActionKeys lists every action key the seed catalog ships with.
func CoreActionKeys() []string {
	return []string{
		PermAdminCreate,
		PermAdminView,
		PermAdminUpdate,
		PermAdminDelete,
		PermRolesCreate,
		PermRolesView,
		PermRolesUpdate,
		PermRolesDelete,
		PermPermissionsCreate,
		PermPermissionsView,
		PermPermissionsUpdate,
		PermPermissionsDelete,
		PermSettingsCreate,
		PermSettingsView,
		PermSettingsUpdate,
		PermSettingsDelete,
	}
}
