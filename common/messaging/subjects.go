package messaging

// Subjects follow the pattern {domain}.{resource}.{action}.
const (
	// Request subjects served by the membership service.
	SubjectGroupsCreate           = "groups.group.create"
	SubjectGroupsUpdate           = "groups.group.update"
	SubjectGroupsDelete           = "groups.group.delete"
	SubjectGroupsSearch           = "groups.group.search"
	SubjectGroupsMembershipUpdate = "groups.membership.update"

	// SubjectGroupsAudit carries audit events; the event type is appended.
	SubjectGroupsAudit = "groups.audit"
)

// QueueGroupWorkers is the queue group shared by membership service replicas.
// Each request is handled by exactly one replica.
const QueueGroupWorkers = "group-workers"

// AuditSubject returns the subject an audit event of eventType is published on.
// Example: groups.audit.MEMBER_UPDATE
func AuditSubject(eventType string) string {
	return SubjectGroupsAudit + "." + eventType
}
