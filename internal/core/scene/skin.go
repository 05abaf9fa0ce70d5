package scene

import "slices"

// Skin binds joints to inverse bind matrices. Skins travel through the binary
// codec only; they are not a synced kind.
type Skin struct {
	doc                 *Document
	name                string
	joints              []*Node
	skeleton            *Node
	inverseBindMatrices *Accessor
	disposed            bool
}

func (s *Skin) Document() *Document            { return s.doc }
func (s *Skin) Name() string                   { return s.name }
func (s *Skin) Joints() []*Node                { return slices.Clone(s.joints) }
func (s *Skin) Skeleton() *Node                { return s.skeleton }
func (s *Skin) InverseBindMatrices() *Accessor { return s.inverseBindMatrices }

func (s *Skin) SetName(name string)         { s.name = name }
func (s *Skin) SetJoints(joints []*Node)    { s.joints = slices.Clone(joints) }
func (s *Skin) SetSkeleton(n *Node)         { s.skeleton = n }
func (s *Skin) SetInverseBindMatrices(a *Accessor) {
	s.inverseBindMatrices = a
}

func (s *Skin) detachJoint(n *Node) {
	s.joints = slices.DeleteFunc(s.joints, func(j *Node) bool { return j == n })
	if s.skeleton == n {
		s.skeleton = nil
	}
}

func (s *Skin) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	for _, n := range s.doc.nodes {
		if n.skin == s {
			n.skin = nil
		}
	}
	s.doc.skins = remove(s.doc.skins, s)
}
