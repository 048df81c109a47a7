package events

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
	TopicInventoryUpdate    = "inventory.update"
	TopicLowStockAlert      = "low.stock.alert"
	TopicEmailNotification  = "email.notification"
)

// Topics consumed by the notifier.
var NotifierTopics = []string{
	TopicOrderCreated,
	TopicOrderStatusChanged,
	TopicInventoryUpdate,
	TopicLowStockAlert,
	TopicEmailNotification,
}

// Partition key = order_id / product_id, supaya semua event 1 entitas maintain urutan.
func PartitionKey(id string) []byte { return []byte(id) }
