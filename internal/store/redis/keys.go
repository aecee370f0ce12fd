package redis

const (
	// KeyPrefixPending is the prefix of the per-owner pending-notification lists
	KeyPrefixPending = "pagewatch:summary_queue:"
)

// PendingKey returns the Redis key of an owner's pending-notification list
func PendingKey(ownerID string) string {
	return KeyPrefixPending + ownerID
}
