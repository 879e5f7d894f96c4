package device

import (
	"fmt"
	"sync"

	"github.com/23skdu/longbow-addn/internal/variant"
)

// ensure interface compliance
var _ Backend = (*CPUBackend)(nil)

// CPUBackend allocates host memory buffers, pooling storage per kind.
type CPUBackend struct {
	pools [numKinds]sync.Pool
}

func NewCPUBackend() *CPUBackend {
	return &CPUBackend{}
}

func (b *CPUBackend) Name() string {
	return "CPU"
}

func (b *CPUBackend) NewBuffer(kind Kind, shape Shape) *Buffer {
	checkKind(kind)
	checkShape(shape)
	return &Buffer{
		kind:  kind,
		shape: shape.Clone(),
		data:  makeStorage(kind, shape.NumElements()),
	}
}

func (b *CPUBackend) GetBuffer(kind Kind, shape Shape) *Buffer {
	checkKind(kind)
	checkShape(shape)
	size := shape.NumElements()

	// Try to get from pool
	if v := b.pools[kind].Get(); v != nil {
		if buf, ok := v.(*Buffer); ok && buf.kind == kind {
			data, reused := reuseStorage(kind, buf.data, size)
			if reused {
				poolHits.WithLabelValues(kind.String()).Inc()
			} else {
				poolMisses.WithLabelValues(kind.String()).Inc()
			}
			buf.shape = shape.Clone()
			buf.data = data
			return buf
		}
	}

	poolMisses.WithLabelValues(kind.String()).Inc()
	return b.NewBuffer(kind, shape)
}

func (b *CPUBackend) PutBuffer(buf *Buffer) {
	if buf == nil || buf.data == nil {
		return
	}
	kind := buf.kind
	if kind <= Invalid || kind >= numKinds {
		return
	}
	if kind == Variant {
		// Drop references to metadata owned elsewhere.
		clear(buf.data.([]variant.Value))
	}
	buf.shape = nil
	// Data is zeroed when retrieved by GetBuffer
	b.pools[kind].Put(buf)
}

func checkKind(kind Kind) {
	if kind <= Invalid || kind >= numKinds {
		panic(fmt.Sprintf("device: invalid kind %v", kind))
	}
}

func checkShape(shape Shape) {
	if err := shape.Validate(); err != nil {
		panic("device: " + err.Error())
	}
}
