package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Cache product: product:{product_id} -> JSON catalog.Product
	KeyProduct = "product:%s"

	// Generasi cache product: product:gen:{product_id} -> counter, naik tiap invalidasi
	KeyProductGen = "product:gen:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
	// TTLProductGen must outlive any product load.
	TTLProductGen = 24 * time.Hour
	// TTLIdemPending bounds how long a crashed request can block its key.
	TTLIdemPending = time.Minute
)
