package service

import "users-api/internal/domain"

// AccessDecision es el resultado de la política de acceso por recurso.
type AccessDecision int

const (
	Deny AccessDecision = iota
	Allow
)

// DecideUserAccess decide si el caller puede actuar sobre la cuenta
// targetID: ALLOW si el rol es ADMIN (comparación literal, sensible a
// mayúsculas) o si el subject coincide con el id objetivo. Función pura,
// sin I/O. Las rutas solo-ADMIN (listar, borrar, crear) se resuelven por
// middleware antes de llegar acá.
func DecideUserAccess(callerRole, callerSubject, targetID string) AccessDecision {
	if callerRole == domain.RoleAdmin.String() {
		return Allow
	}
	if callerSubject != "" && callerSubject == targetID {
		return Allow
	}
	return Deny
}
