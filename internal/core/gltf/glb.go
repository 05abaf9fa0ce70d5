package gltf

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/pkg/generic"
)

const (
	glbMagic   = 0x46546C67 // "glTF"
	glbVersion = 2

	chunkJSON = 0x4E4F534A // "JSON"
	chunkBIN  = 0x004E4942 // "BIN\x00"

	headerSize      = 12
	chunkHeaderSize = 8
)

var chunkBuffers = generic.NewBufferPool(4 << 20)

// IsGLB reports whether data starts with a version 2 GLB header.
func IsGLB(data []byte) bool {
	return len(data) >= headerSize &&
		binary.LittleEndian.Uint32(data[0:]) == glbMagic &&
		binary.LittleEndian.Uint32(data[4:]) == glbVersion
}

func pad4(n int) int { return (n + 3) &^ 3 }

// WriteGLB writes the 12-byte header, the JSON chunk padded with spaces, and,
// when bin is non-empty, the binary chunk padded with zeros.
func WriteGLB(w io.Writer, jsonChunk, bin []byte) error {
	jsonLen, binLen := pad4(len(jsonChunk)), pad4(len(bin))
	total := headerSize + chunkHeaderSize + jsonLen
	if len(bin) > 0 {
		total += chunkHeaderSize + binLen
	}

	out := chunkBuffers.Get()
	defer chunkBuffers.Put(out)
	out.Grow(total)

	le := binary.LittleEndian
	var word [4]byte
	put := func(v uint32) {
		le.PutUint32(word[:], v)
		out.Write(word[:])
	}

	put(glbMagic)
	put(glbVersion)
	put(uint32(total))

	put(uint32(jsonLen))
	put(chunkJSON)
	out.Write(jsonChunk)
	for i := len(jsonChunk); i < jsonLen; i++ {
		out.WriteByte(' ')
	}

	if len(bin) > 0 {
		put(uint32(binLen))
		put(chunkBIN)
		out.Write(bin)
		for i := len(bin); i < binLen; i++ {
			out.WriteByte(0)
		}
	}

	_, err := w.Write(out.Bytes())
	return errors.Wrap(err, "gltf: write glb")
}

// ReadGLB splits a GLB blob into its JSON and binary chunks. Unknown chunk
// types after the JSON chunk are skipped.
func ReadGLB(data []byte) (jsonChunk, bin []byte, err error) {
	if !IsGLB(data) {
		return nil, nil, errors.Wrap(ErrInvalid, "not a GLB blob")
	}
	le := binary.LittleEndian
	total := int(le.Uint32(data[8:]))
	if total > len(data) || total < headerSize {
		return nil, nil, errors.Wrapf(ErrInvalid, "glb length %d exceeds %d bytes", total, len(data))
	}
	data = data[headerSize:total]

	for first := true; len(data) >= chunkHeaderSize; first = false {
		length, typ := int(le.Uint32(data[0:])), le.Uint32(data[4:])
		if chunkHeaderSize+length > len(data) {
			return nil, nil, errors.Wrap(ErrInvalid, "glb chunk overruns blob")
		}
		payload := data[chunkHeaderSize : chunkHeaderSize+length]
		data = data[chunkHeaderSize+length:]

		switch {
		case first && typ != chunkJSON:
			return nil, nil, errors.Wrap(ErrInvalid, "glb must start with a JSON chunk")
		case typ == chunkJSON:
			jsonChunk = payload
		case typ == chunkBIN && bin == nil:
			bin = payload
		}
	}
	if jsonChunk == nil {
		return nil, nil, errors.Wrap(ErrInvalid, "glb without JSON chunk")
	}
	return jsonChunk, bin, nil
}
