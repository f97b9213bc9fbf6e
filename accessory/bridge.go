package accessory

// NewBridge creates the special aid=1 accessory whose only service is
// AccessoryInformation — the container it sits inside is what fans out to
// the other, independently-addressable accessories (aid >= 2).
func NewBridge(info Info) *Accessory {
	return New(info, CategoryBridge)
}
