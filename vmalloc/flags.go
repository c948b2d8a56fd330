package vmalloc

// Flags modify a single region operation.
type Flags uint32

const (
	// Local means the caller already holds the region's lock.
	Local Flags = 1 << iota
	// Move lets Resize relocate a block it cannot grow in place.
	Move
	// Copy preserves the contents when Resize moves a block.
	Copy
	// Zero clears the bytes Resize adds.
	Zero
)
