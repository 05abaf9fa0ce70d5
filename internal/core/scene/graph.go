package scene

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/core/events"
)

// observed is an entity that announces attribute-scoped changes.
type observed[A comparable] interface {
	Entity
	Observable[A]
}

type mark struct {
	obj  any
	attr any
}

// Graph diffs the authority's document into create, change, and dispose
// messages. Creates are emitted kind by kind in dependency order, so a receiver
// applying messages in arrival order always finds the ids a create refers to.
type Graph struct {
	doc    *Document
	regs   *Registries
	sender Sender

	ops   []func() error
	marks map[mark]struct{}
	subs  map[any][]events.Subscription

	// shadow holds each node's children as last announced to receivers;
	// reparented lists nodes whose children changed since the last flush.
	shadow     map[*Node][]*Node
	reparented []*Node
}

// NewGraph tracks doc and sends its changes through sender.
func NewGraph(doc *Document, sender Sender) *Graph {
	return &Graph{
		doc:    doc,
		regs:   NewRegistries(doc, false),
		sender: sender,
		marks:  make(map[mark]struct{}),
		subs:   make(map[any][]events.Subscription),
		shadow: make(map[*Node][]*Node),
	}
}

func (g *Graph) Document() *Document     { return g.doc }
func (g *Graph) Registries() *Registries { return g.regs }

// ProcessChanges emits everything that happened since the previous call:
// creates for newly seen entities, then attribute changes and disposals in the
// order they were raised. A change is sent once per attribute per call with the
// value current at flush time. The first error aborts the flush.
func (g *Graph) ProcessChanges() error {
	if err := g.announce(); err != nil {
		return err
	}
	if err := g.detachStale(); err != nil {
		return err
	}
	ops := g.ops
	g.ops = nil
	clear(g.marks)
	for _, op := range ops {
		if err := op(); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot sends a create for every tracked entity to s, in the same order
// ProcessChanges would. It lets a late receiver catch up and does not touch
// pending changes.
func (g *Graph) Snapshot(s Sender) error {
	r := g.regs
	if err := snapshotKind(r.Buffers, r.Buffers.listing(), s); err != nil {
		return err
	}
	if err := snapshotKind(r.Accessors, r.Accessors.listing(), s); err != nil {
		return err
	}
	if err := snapshotKind(r.Textures, r.Textures.listing(), s); err != nil {
		return err
	}
	if err := snapshotKind(r.Materials, r.Materials.listing(), s); err != nil {
		return err
	}
	if err := snapshotKind(r.Primitives, r.Primitives.listing(), s); err != nil {
		return err
	}
	if err := snapshotKind(r.Meshes, r.Meshes.listing(), s); err != nil {
		return err
	}
	return snapshotKind(r.Nodes, postOrder(r.Nodes.listing()), s)
}

// Close detaches every listener. Pending changes are dropped.
func (g *Graph) Close() {
	for _, subs := range g.subs {
		for _, s := range subs {
			s.Cancel()
		}
	}
	clear(g.subs)
	clear(g.marks)
	g.ops = nil
}

func (g *Graph) announce() error {
	r := g.regs
	if err := announce(g, r.Buffers, bufferCodec{}.fill, r.Buffers.ProcessChanges()); err != nil {
		return err
	}
	if err := announce(g, r.Accessors, accessorCodec{r}.fill, r.Accessors.ProcessChanges()); err != nil {
		return err
	}
	if err := announce(g, r.Textures, textureCodec{}.fill, r.Textures.ProcessChanges()); err != nil {
		return err
	}
	if err := announce(g, r.Materials, materialCodec{r}.fill, r.Materials.ProcessChanges()); err != nil {
		return err
	}
	if err := announce(g, r.Primitives, primitiveCodec{r}.fill, r.Primitives.ProcessChanges()); err != nil {
		return err
	}
	if err := announce(g, r.Meshes, meshCodec{r}.fill, r.Meshes.ProcessChanges()); err != nil {
		return err
	}
	nodes := postOrder(r.Nodes.ProcessChanges())
	if err := announce(g, r.Nodes, nodeCodec{r}.fill, nodes); err != nil {
		return err
	}
	for _, n := range nodes {
		g.shadow[n] = n.Children()
		n := n
		g.subs[n] = append(g.subs[n], n.OnChange(func(attr NodeAttr) {
			if attr == NodeChildren && !slices.Contains(g.reparented, n) {
				g.reparented = append(g.reparented, n)
			}
		}))
	}
	return nil
}

// detachStale sends, for every node that lost children since the last flush,
// its announced child list minus the children it no longer holds. Receivers
// then only hold links that still exist here, so the full child lists that
// follow can never close a cycle on their side.
func (g *Graph) detachStale() error {
	nodes := g.reparented
	g.reparented = nil
	for _, n := range nodes {
		if n.IsDisposed() {
			continue
		}
		old := g.shadow[n]
		kept := slices.DeleteFunc(slices.Clone(old), func(c *Node) bool {
			return c.IsDisposed() || c.parent != n
		})
		if len(kept) == len(old) {
			continue
		}
		g.shadow[n] = kept
		id, _ := g.regs.Nodes.GetID(n)
		ids, err := refList(g.regs.Nodes, kept)
		if err != nil {
			return errors.Wrapf(err, "detach children of node %s", id)
		}
		if err := g.send(Subject(OpChange, KindNode), EntityMessage[NodeJSON]{ID: id, JSON: NodeJSON{Children: &ids}}); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) send(subject string, data any) error {
	if err := g.sender.Send(subject, data); err != nil {
		return errors.Wrap(err, subject)
	}
	return nil
}

func announce[T observed[A], A comparable, J any](g *Graph, r *Registry[T, J], fill func(T, A, *J) error, fresh []T) error {
	for _, obj := range fresh {
		id, _ := r.GetID(obj)
		j, err := r.ToJSON(obj)
		if err != nil {
			return errors.Wrapf(err, "create %s %s", r.kind, id)
		}
		if err := g.send(Subject(OpCreate, r.kind), EntityMessage[J]{ID: id, JSON: j}); err != nil {
			return err
		}
		watch(g, r, fill, obj)
	}
	return nil
}

func watch[T observed[A], A comparable, J any](g *Graph, r *Registry[T, J], fill func(T, A, *J) error, obj T) {
	onChange := obj.OnChange(func(attr A) {
		key := mark{obj, attr}
		if _, ok := g.marks[key]; ok {
			return
		}
		g.marks[key] = struct{}{}
		g.ops = append(g.ops, func() error {
			if obj.IsDisposed() {
				return nil
			}
			id, ok := r.GetID(obj)
			if !ok {
				return nil
			}
			var j J
			if err := fill(obj, attr, &j); err != nil {
				return errors.Wrapf(err, "change %s %s %v", r.kind, id, attr)
			}
			if n, ok := any(obj).(*Node); ok && any(attr) == any(NodeChildren) {
				g.shadow[n] = n.Children()
			}
			return g.send(Subject(OpChange, r.kind), EntityMessage[J]{ID: id, JSON: j})
		})
	})
	onDispose := obj.OnDispose(func() {
		delete(g.subs, obj)
		g.ops = append(g.ops, func() error {
			id, ok := r.GetID(obj)
			if !ok {
				return nil
			}
			r.Remove(id)
			if n, ok := any(obj).(*Node); ok {
				delete(g.shadow, n)
			}
			return g.send(Subject(OpDispose, r.kind), DisposeMessage{ID: id})
		})
	})
	g.subs[obj] = append(g.subs[obj], onChange, onDispose)
}

func snapshotKind[T Entity, J any](r *Registry[T, J], objs []T, s Sender) error {
	for _, obj := range objs {
		id, ok := r.GetID(obj)
		if !ok {
			continue
		}
		j, err := r.ToJSON(obj)
		if err != nil {
			return errors.Wrapf(err, "snapshot %s %s", r.kind, id)
		}
		if err := s.Send(Subject(OpCreate, r.kind), EntityMessage[J]{ID: id, JSON: j}); err != nil {
			return err
		}
	}
	return nil
}

// postOrder orders nodes so that every node in the set follows its children in
// the set.
func postOrder(nodes []*Node) []*Node {
	in := make(map[*Node]bool, len(nodes))
	for _, n := range nodes {
		in[n] = true
	}
	out := make([]*Node, 0, len(nodes))
	done := make(map[*Node]bool, len(nodes))
	var visit func(*Node)
	visit = func(n *Node) {
		if done[n] {
			return
		}
		done[n] = true
		for _, c := range n.children {
			if in[c] {
				visit(c)
			}
		}
		out = append(out, n)
	}
	for _, n := range nodes {
		visit(n)
	}
	return out
}
