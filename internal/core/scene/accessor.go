package scene

import (
	"math"
	"slices"
)

// ComponentType is the glTF storage type of one accessor component.
type ComponentType int

const (
	Byte          ComponentType = 5120
	UnsignedByte  ComponentType = 5121
	Short         ComponentType = 5122
	UnsignedShort ComponentType = 5123
	UnsignedInt   ComponentType = 5125
	Float         ComponentType = 5126
)

// Size is the component size in bytes, 0 for unknown types.
func (c ComponentType) Size() int {
	switch c {
	case Byte, UnsignedByte:
		return 1
	case Short, UnsignedShort:
		return 2
	case UnsignedInt, Float:
		return 4
	default:
		return 0
	}
}

func (c ComponentType) Valid() bool { return c.Size() != 0 }

// ElementType is the glTF accessor "type".
type ElementType string

const (
	Scalar ElementType = "SCALAR"
	Vec2   ElementType = "VEC2"
	Vec3   ElementType = "VEC3"
	Vec4   ElementType = "VEC4"
	Mat2   ElementType = "MAT2"
	Mat3   ElementType = "MAT3"
	Mat4   ElementType = "MAT4"
)

// Size is the number of components per element, 0 for unknown types.
func (t ElementType) Size() int {
	switch t {
	case Scalar:
		return 1
	case Vec2:
		return 2
	case Vec3:
		return 3
	case Vec4, Mat2:
		return 4
	case Mat3:
		return 9
	case Mat4:
		return 16
	default:
		return 0
	}
}

func (t ElementType) Valid() bool { return t.Size() != 0 }

// AccessorAttr names an Accessor field in change events.
type AccessorAttr uint8

const (
	AccessorName AccessorAttr = iota
	AccessorBuffer
	AccessorComponentType
	AccessorType
	AccessorNormalized
	AccessorArray
	AccessorSparse
)

var accessorAttrs = [...]AccessorAttr{
	AccessorName, AccessorBuffer, AccessorComponentType, AccessorType,
	AccessorNormalized, AccessorArray, AccessorSparse,
}

func (a AccessorAttr) String() string {
	switch a {
	case AccessorName:
		return "name"
	case AccessorBuffer:
		return "buffer"
	case AccessorComponentType:
		return "componentType"
	case AccessorType:
		return "type"
	case AccessorNormalized:
		return "normalized"
	case AccessorArray:
		return "array"
	case AccessorSparse:
		return "sparse"
	default:
		return "unknown"
	}
}

// Accessor is a typed view of element data. The array holds raw component
// values; float64 represents every glTF component type exactly.
type Accessor struct {
	entity[AccessorAttr]
	name          string
	buffer        *Buffer
	componentType ComponentType
	elementType   ElementType
	normalized    bool
	array         []float64
	sparse        bool
}

// AccessorJSON is the snapshot and partial-update shape of an Accessor.
type AccessorJSON struct {
	Name          *string        `json:"name,omitempty"`
	Buffer        *ID            `json:"buffer,omitempty"`
	ComponentType *ComponentType `json:"componentType,omitempty"`
	Type          *ElementType   `json:"type,omitempty"`
	Normalized    *bool          `json:"normalized,omitempty"`
	Array         *[]float64     `json:"array,omitempty"`
	Sparse        *bool          `json:"sparse,omitempty"`
}

func (a *Accessor) Kind() Kind { return KindAccessor }

func (a *Accessor) Name() string                 { return a.name }
func (a *Accessor) Buffer() *Buffer              { return a.buffer }
func (a *Accessor) ComponentType() ComponentType { return a.componentType }
func (a *Accessor) ElementType() ElementType     { return a.elementType }
func (a *Accessor) Normalized() bool             { return a.normalized }
func (a *Accessor) Sparse() bool                 { return a.sparse }

// Array returns the backing array. Callers must not modify it; use SetArray.
func (a *Accessor) Array() []float64 { return a.array }

// Count is the number of elements.
func (a *Accessor) Count() int {
	if n := a.elementType.Size(); n > 0 {
		return len(a.array) / n
	}
	return 0
}

// Element copies element i into dst (grown as needed) and returns it.
func (a *Accessor) Element(i int, dst []float64) []float64 {
	n := a.elementType.Size()
	return append(dst[:0], a.array[i*n:(i+1)*n]...)
}

// NormalizedElement returns element i as float32, mapping integer components
// into [0,1] or [-1,1] when the accessor is normalized.
func (a *Accessor) NormalizedElement(i int, dst []float32) []float32 {
	n := a.elementType.Size()
	dst = dst[:0]
	for _, v := range a.array[i*n : (i+1)*n] {
		if a.normalized {
			v = denormalize(a.componentType, v)
		}
		dst = append(dst, float32(v))
	}
	return dst
}

func denormalize(c ComponentType, v float64) float64 {
	switch c {
	case Byte:
		return math.Max(v/127, -1)
	case UnsignedByte:
		return v / 255
	case Short:
		return math.Max(v/32767, -1)
	case UnsignedShort:
		return v / 65535
	case UnsignedInt:
		return v / 4294967295
	default:
		return v
	}
}

// MinMax returns the per-component bounds over every element.
func (a *Accessor) MinMax() (lo, hi []float64) {
	n := a.elementType.Size()
	if n == 0 || len(a.array) < n {
		return nil, nil
	}
	lo = slices.Clone(a.array[:n])
	hi = slices.Clone(a.array[:n])
	for i := n; i+n <= len(a.array); i += n {
		for c := 0; c < n; c++ {
			v := a.array[i+c]
			lo[c] = math.Min(lo[c], v)
			hi[c] = math.Max(hi[c], v)
		}
	}
	return lo, hi
}

func (a *Accessor) SetName(name string) {
	if a.name != name {
		a.name = name
		a.changed(AccessorName)
	}
}

func (a *Accessor) SetBuffer(b *Buffer) {
	if b != nil {
		a.mustShare(b.doc)
	}
	if a.buffer != b {
		a.buffer = b
		a.changed(AccessorBuffer)
	}
}

func (a *Accessor) SetComponentType(c ComponentType) {
	if a.componentType != c {
		a.componentType = c
		a.changed(AccessorComponentType)
	}
}

func (a *Accessor) SetElementType(t ElementType) {
	if a.elementType != t {
		a.elementType = t
		a.changed(AccessorType)
	}
}

func (a *Accessor) SetNormalized(v bool) {
	if a.normalized != v {
		a.normalized = v
		a.changed(AccessorNormalized)
	}
}

// SetArray takes ownership of values.
func (a *Accessor) SetArray(values []float64) {
	if !slices.Equal(a.array, values) {
		a.array = values
		a.changed(AccessorArray)
	}
}

// SetSparse marks the accessor for sparse storage on export.
func (a *Accessor) SetSparse(v bool) {
	if a.sparse != v {
		a.sparse = v
		a.changed(AccessorSparse)
	}
}

// Dispose removes the accessor and detaches it from every primitive and skin.
func (a *Accessor) Dispose() {
	if !a.beginDispose() {
		return
	}
	doc := a.doc
	for _, p := range doc.primitives {
		p.detachAccessor(a)
	}
	for _, s := range doc.skins {
		if s.inverseBindMatrices == a {
			s.inverseBindMatrices = nil
		}
	}
	doc.accessors = remove(doc.accessors, a)
	a.endDispose()
}
