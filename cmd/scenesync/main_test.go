package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/scenesync/internal/core/gltf"
	"github.com/zeusync/scenesync/internal/core/scene"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeLevel(t *testing.T) string {
	t.Helper()
	doc := scene.NewDocument()
	buf := doc.CreateBuffer("geometry")
	pos := doc.CreateAccessor("pos", buf)
	pos.SetElementType(scene.Vec3)
	pos.SetArray([]float64{0, 0, 0, 1, 0, 0, 0, 1, 0})
	prim := doc.CreatePrimitive()
	prim.SetAttribute("POSITION", pos)
	mesh := doc.CreateMesh("tri")
	mesh.AddPrimitive(prim)

	ground := doc.CreateNode("ground")
	ground.SetMesh(mesh)
	ground.SetCollider(&scene.Collider{Type: scene.ColliderBox, Size: [3]float32{10, 1, 10}})
	spawn := doc.CreateNode("spawn")
	spawn.SetTranslation([3]float32{0, 2, 0})
	spawn.SetSpawnPoint(&scene.SpawnPoint{Title: "start"})
	ground.AddChild(spawn)

	var out bytes.Buffer
	require.NoError(t, gltf.NewExporter(gltf.Options{}).Write(context.Background(), doc, &out))
	path := filepath.Join(t.TempDir(), "level.glb")
	require.NoError(t, os.WriteFile(path, out.Bytes(), 0o600))
	return path
}

func TestInspectSummarizesFile(t *testing.T) {
	out, err := execute(t, "inspect", writeLevel(t))
	require.NoError(t, err)

	var s summary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 1, s.Buffers)
	assert.Equal(t, 1, s.Accessors)
	assert.Equal(t, 1, s.Meshes)
	assert.Equal(t, 2, s.Nodes)
	require.Len(t, s.Roots, 1)
	assert.Equal(t, "ground", s.Roots[0].Name)
	assert.Equal(t, "box", s.Roots[0].Collider)
	require.Len(t, s.Roots[0].Children, 1)
	assert.True(t, s.Roots[0].Children[0].Spawn)
	assert.Equal(t, [3]float32{0, 2, 0}, s.Roots[0].Children[0].Translation)
}

func TestInspectNeedsASource(t *testing.T) {
	_, err := execute(t, "inspect")
	assert.Error(t, err)
}

func TestExportPicksFormat(t *testing.T) {
	in := writeLevel(t)
	dir := t.TempDir()

	asJSON := filepath.Join(dir, "level.gltf")
	_, err := execute(t, "export", in, asJSON)
	require.NoError(t, err)
	data, err := os.ReadFile(asJSON)
	require.NoError(t, err)
	assert.False(t, gltf.IsGLB(data))
	assert.True(t, json.Valid(data))

	back := filepath.Join(dir, "back.glb")
	_, err = execute(t, "export", asJSON, back)
	require.NoError(t, err)
	data, err = os.ReadFile(back)
	require.NoError(t, err)
	assert.True(t, gltf.IsGLB(data))

	doc, err := gltf.ParseBytes(data, gltf.ParseOptions{})
	require.NoError(t, err)
	assert.Len(t, doc.Nodes(), 2)

	forced := filepath.Join(dir, "forced.glb")
	_, err = execute(t, "export", in, forced, "--json")
	require.NoError(t, err)
	data, err = os.ReadFile(forced)
	require.NoError(t, err)
	assert.False(t, gltf.IsGLB(data))
}

func TestSchemaCommand(t *testing.T) {
	out, err := execute(t, "schema", "node")
	require.NoError(t, err)
	assert.Contains(t, out, "translation")

	_, err = execute(t, "schema", "skin")
	assert.Error(t, err)
}
