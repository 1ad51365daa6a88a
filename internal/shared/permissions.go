package shared

// Permission catalog codes. The catalog is seeded once; codes are the stable
// identifiers used everywhere, ids stay storage-local.
const (
	PermUsersView    = "usuarios.ver"
	PermUsersCreate  = "usuarios.crear"
	PermUsersEdit    = "usuarios.editar"
	PermUsersDelete  = "usuarios.eliminar"
	PermUsersPerms   = "usuarios.permisos"
	PermUsersExport  = "usuarios.exportar"

	PermRolesView   = "roles.ver"
	PermRolesCreate = "roles.crear"
	PermRolesEdit   = "roles.editar"
	PermRolesDelete = "roles.eliminar"

	PermAuditView   = "auditoria.ver"
	PermAuditExport = "auditoria.exportar"

	PermAlertsView    = "alertas.ver"
	PermAlertsResolve = "alertas.resolver"

	PermMFAForce = "seguridad.mfa_forzar"
)

// CoreScopes lists every permission owned by the authorization subsystem,
// grouped in seed display order.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersCreate,
		PermUsersEdit,
		PermUsersDelete,
		PermUsersPerms,
		PermUsersExport,
		PermRolesView,
		PermRolesCreate,
		PermRolesEdit,
		PermRolesDelete,
		PermAuditView,
		PermAuditExport,
		PermAlertsView,
		PermAlertsResolve,
		PermMFAForce,
	}
}
