package checkout

const (
	TopicOrderCreated   = "checkout.order.created"
	TopicOrderFinalized = "checkout.order.finalized"
)

// Partition key = order id, so all events for one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
