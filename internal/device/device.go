package device

// Backend allocates buffers. Output buffers handed out by a backend belong
// to the caller until they are returned with PutBuffer.
type Backend interface {
	Name() string

	// NewBuffer allocates a fresh zero-filled buffer.
	NewBuffer(kind Kind, shape Shape) *Buffer

	// GetBuffer gets a zero-filled buffer from the pool or creates a new one.
	GetBuffer(kind Kind, shape Shape) *Buffer

	// PutBuffer returns a buffer to the pool. The caller must not use it afterwards.
	PutBuffer(b *Buffer)
}
