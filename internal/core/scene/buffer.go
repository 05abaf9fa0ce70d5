package scene

// BufferAttr names a Buffer field in change events.
type BufferAttr uint8

const (
	BufferName BufferAttr = iota
	BufferURI
)

var bufferAttrs = [...]BufferAttr{BufferName, BufferURI}

func (a BufferAttr) String() string {
	switch a {
	case BufferName:
		return "name"
	case BufferURI:
		return "uri"
	default:
		return "unknown"
	}
}

// Buffer is a binary storage group. Accessors point at the buffer they are
// packed into on export.
type Buffer struct {
	entity[BufferAttr]
	name string
	uri  string
}

// BufferJSON is the snapshot and partial-update shape of a Buffer.
type BufferJSON struct {
	Name *string `json:"name,omitempty"`
	URI  *string `json:"uri,omitempty"`
}

func (b *Buffer) Kind() Kind { return KindBuffer }

func (b *Buffer) Name() string { return b.name }
func (b *Buffer) URI() string  { return b.uri }

func (b *Buffer) SetName(name string) {
	if b.name != name {
		b.name = name
		b.changed(BufferName)
	}
}

func (b *Buffer) SetURI(uri string) {
	if b.uri != uri {
		b.uri = uri
		b.changed(BufferURI)
	}
}

// Dispose removes the buffer from its document. Disposing a buffer that a live
// accessor still points at is a programming error and panics.
func (b *Buffer) Dispose() {
	if b.disposed {
		return
	}
	if a := b.referrer(); a != nil {
		panic("scene: buffer disposed while referenced by accessor " + a.name)
	}
	b.beginDispose()
	b.doc.buffers = remove(b.doc.buffers, b)
	b.endDispose()
}

func (b *Buffer) referrer() *Accessor {
	for _, a := range b.doc.accessors {
		if a.buffer == b {
			return a
		}
	}
	return nil
}
