package scene

import "bytes"

// TextureAttr names a Texture field in change events.
type TextureAttr uint8

const (
	TextureName TextureAttr = iota
	TextureImage
	TextureURI
	TextureMIMEType
)

var textureAttrs = [...]TextureAttr{TextureName, TextureImage, TextureURI, TextureMIMEType}

func (a TextureAttr) String() string {
	switch a {
	case TextureName:
		return "name"
	case TextureImage:
		return "image"
	case TextureURI:
		return "uri"
	case TextureMIMEType:
		return "mimeType"
	default:
		return "unknown"
	}
}

// Texture carries an encoded image, either inline bytes or an external URI.
type Texture struct {
	entity[TextureAttr]
	name     string
	image    []byte
	uri      string
	mimeType string
}

// TextureJSON is the snapshot and partial-update shape of a Texture.
// Image bytes travel base64-encoded on JSON channels.
type TextureJSON struct {
	Name     *string `json:"name,omitempty"`
	Image    *[]byte `json:"image,omitempty"`
	URI      *string `json:"uri,omitempty"`
	MIMEType *string `json:"mimeType,omitempty"`
}

func (t *Texture) Kind() Kind { return KindTexture }

func (t *Texture) Name() string     { return t.name }
func (t *Texture) Image() []byte    { return t.image }
func (t *Texture) URI() string      { return t.uri }
func (t *Texture) MIMEType() string { return t.mimeType }

func (t *Texture) SetName(name string) {
	if t.name != name {
		t.name = name
		t.changed(TextureName)
	}
}

// SetImage takes ownership of data.
func (t *Texture) SetImage(data []byte) {
	if !bytes.Equal(t.image, data) {
		t.image = data
		t.changed(TextureImage)
	}
}

func (t *Texture) SetURI(uri string) {
	if t.uri != uri {
		t.uri = uri
		t.changed(TextureURI)
	}
}

func (t *Texture) SetMIMEType(mime string) {
	if t.mimeType != mime {
		t.mimeType = mime
		t.changed(TextureMIMEType)
	}
}

// Dispose removes the texture and clears it from every material slot.
func (t *Texture) Dispose() {
	if !t.beginDispose() {
		return
	}
	for _, m := range t.doc.materials {
		m.detachTexture(t)
	}
	t.doc.textures = remove(t.doc.textures, t)
	t.endDispose()
}
