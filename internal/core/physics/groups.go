package physics

// Group is a 16-bit collision group mask.
type Group uint16

const (
	GroupStatic  Group = 1 << 0
	GroupDynamic Group = 1 << 1
	GroupPlayer  Group = 1 << 2
	GroupAll     Group = 0xFFFF
)

// Groups packs a membership mask and a filter mask into one value, membership
// in the high 16 bits.
type Groups uint32

func Pack(membership, filter Group) Groups {
	return Groups(uint32(membership)<<16 | uint32(filter))
}

func (g Groups) Unpack() (membership, filter Group) {
	return Group(g >> 16), Group(g & 0xFFFF)
}

func (g Groups) Membership() Group { return Group(g >> 16) }
func (g Groups) Filter() Group     { return Group(g & 0xFFFF) }

// Interacts reports whether each side is a member of a group the other filters
// for.
func Interacts(a, b Groups) bool {
	am, af := a.Unpack()
	bm, bf := b.Unpack()
	return am&bf != 0 && bm&af != 0
}

var (
	// StaticGroups is assigned to colliders built from scene nodes.
	StaticGroups = Pack(GroupStatic, GroupAll)
	// DynamicGroups is assigned to simulated bodies.
	DynamicGroups = Pack(GroupDynamic, GroupAll)
	// PlayerGroups is assigned to the player capsule.
	PlayerGroups = Pack(GroupPlayer, GroupAll&^GroupPlayer)
	// ExceptPlayer selects everything but the player, for queries cast from it.
	ExceptPlayer = Pack(GroupAll, GroupAll&^GroupPlayer)
)
