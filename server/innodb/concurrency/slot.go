package concurrency

// SlotLocation is the physical (block, offset) address of a tuple
// version. It is supplied by the storage layer and is opaque to the
// transaction context beyond its use as a map key.
type SlotLocation struct {
	BlockID uint64
	Offset  uint32
}
