package redisstore

// Key prefixes for primary entity storage.
const (
	prefixEventType = "hookline:evtype:"
	prefixEndpoint  = "hookline:ep:"
	prefixDelivery  = "hookline:del:"
)

// Key prefixes for unique indexes.
const (
	uniqueEventTypeName = "hookline:u:evtype:name:"
)

// Key prefixes for sorted set indexes.
const (
	zEventTypeAll = "hookline:z:evtype:all"
	zEndpointOrg  = "hookline:z:ep:org:" // + org ID
	zDeliveryEP   = "hookline:z:del:ep:" // + endpoint ID
	zDeliveryOrg  = "hookline:z:del:org:" // + org ID

	// zDeliveryDue holds every pending delivery scored by the time it next
	// becomes claimable: next_attempt_at when unclaimed, the lease deadline
	// while claimed. Membership doubles as the pending count.
	zDeliveryDue = "hookline:z:del:due"
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}
