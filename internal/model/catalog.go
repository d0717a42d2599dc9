package model

// Store is the slice of the `stores` table the coordination core
// reads: ownership for authorization and the minimum order amount
// used by the threshold check.  Store management itself lives in a
// separate catalog service.
type Store struct {
	ID             uint64 // stores.id
	OwnerID        uint64 // stores.owner_id
	Name           string // stores.name
	Category       string // stores.category
	DeliveryFee    int64  // stores.delivery_fee
	MinOrderAmount int64  // stores.min_order_amount
}

// Menu is a priced menu entry.  Price is read point-in-time when a
// member adds the item; the snapshot lives on the order item.
type Menu struct {
	ID          uint64 // menus.id
	StoreID     uint64 // menus.store_id
	Name        string // menus.name
	Price       int64  // menus.price
	IsAvailable bool   // menus.is_available
}
