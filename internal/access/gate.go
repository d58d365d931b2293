package access

import (
	"slices"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/apperr"
)

type Operation string

const (
	OpSetAvailability      Operation = "availability.set"
	OpViewAvailability     Operation = "availability.view"
	OpDeleteSlot           Operation = "availability.delete_slot"
	OpRequestAppointment   Operation = "appointment.request"
	OpViewAppointment      Operation = "appointment.view"
	OpListAppointments     Operation = "appointment.list"
	OpSetAppointmentStatus Operation = "appointment.set_status"
	OpProposeReschedule    Operation = "appointment.propose_reschedule"
	OpResolveReschedule    Operation = "appointment.resolve_reschedule"
	OpLinkClient           Operation = "link.create"
	OpListClients          Operation = "link.list_clients"
	OpSendMessage          Operation = "message.send"
	OpReadMessages         Operation = "message.read"
)

var (
	providers = []Role{RoleTherapist, RoleIntern}
	parties   = []Role{RoleClient, RoleTherapist, RoleIntern}
)

// Permissions is the operation -> allowed-role table the Gate consults.
var Permissions = map[Operation][]Role{
	OpSetAvailability:      providers,
	OpViewAvailability:     allRoles,
	OpDeleteSlot:           providers,
	OpRequestAppointment:   {RoleClient},
	OpViewAppointment:      allRoles,
	OpListAppointments:     allRoles,
	OpSetAppointmentStatus: providers,
	OpProposeReschedule:    parties,
	OpResolveReschedule:    providers,
	OpLinkClient:           {RoleTherapist, RoleIntern, RolePracticeManagerAdmin, RoleOwner},
	OpListClients:          providers,
	OpSendMessage:          parties,
	OpReadMessages:         parties,
}

var ErrUnauthenticated = apperr.Forbidden("caller is not authenticated")

// Gate decides whether a caller may run an operation.
type Gate struct {
	perms map[Operation][]Role
}

func NewGate() *Gate {
	return &Gate{perms: Permissions}
}

// Allows reports whether role may run op, ignoring resource ownership.
func (g *Gate) Allows(role Role, op Operation) bool {
	return slices.Contains(g.perms[op], role)
}

// Authorize returns a Forbidden error unless caller's role is permitted for op
// and, when owners are given, caller is one of them.
func (g *Gate) Authorize(caller Caller, op Operation, owners ...uuid.UUID) error {
	if caller.IsZero() {
		return ErrUnauthenticated
	}
	if !g.Allows(caller.Role, op) {
		return apperr.Forbidden("role %s may not perform %s", caller.Role, op)
	}
	if len(owners) > 0 && !slices.Contains(owners, caller.ID) {
		return apperr.Forbidden("caller does not own this resource")
	}
	return nil
}
