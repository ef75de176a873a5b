package bptree

import (
	"github.com/pkg/errors"

	"minirel/catalog"
	"minirel/dberr"
)

func (t *Tree) compareKeyGTE(value, key []byte) bool {
	return compareKeys(t.keyType, value, key, catalog.OpGTE)
}

func compareKeys(typ catalog.AttrType, a, b []byte, op catalog.Op) bool {
	switch typ {
	case catalog.TypeInt:
		return catalog.CompareInt(catalog.DecodeInt(a), catalog.DecodeInt(b), op)
	case catalog.TypeFloat:
		return catalog.CompareFloat(catalog.DecodeFloat(a), catalog.DecodeFloat(b), op)
	default:
		return catalog.CompareString(catalog.DecodeString(a, len(a)), catalog.DecodeString(b, len(b)), op)
	}
}

func (t *Tree) readPage(pid int32) ([]byte, error) {
	return t.pager.ReadPage(pid)
}

// descend walks from the root to the leaf that should contain value, using
// the same child-selection rule insert and search share: start at child0,
// and for each (key_i, child_{i+1}) advance to child_{i+1} while
// value ≥ key_i.
func (t *Tree) descend(value []byte) (int32, error) {
	pid := t.rootPid
	for {
		buf, err := t.readPage(pid)
		if err != nil {
			return 0, err
		}
		if err := validateNode(buf); err != nil {
			return 0, err
		}
		if getNodeType(buf) == leafNode {
			return pid, nil
		}
		data := nodeData(buf)
		numKeys := getNumKeys(buf)
		child := internalChild0(data)
		for i := 0; i < numKeys; i++ {
			key := internalKeyAt(data, i, t.keyLength)
			if t.compareKeyGTE(value, key) {
				child = internalChildAt(data, i, t.keyLength)
			} else {
				break
			}
		}
		pid = child
	}
}

// leftmostLeaf returns the first leaf in key order, following child0 at
// every internal node.
func (t *Tree) leftmostLeaf() (int32, error) {
	pid := t.rootPid
	for {
		buf, err := t.readPage(pid)
		if err != nil {
			return 0, err
		}
		if err := validateNode(buf); err != nil {
			return 0, err
		}
		if getNodeType(buf) == leafNode {
			return pid, nil
		}
		pid = internalChild0(nodeData(buf))
	}
}

// Search returns every RID whose key satisfies op against value. EQ/GT/GTE
// start at the descended leaf (everything before it is necessarily
// disqualified); LT/LTE/NE must scan from the very first leaf since nothing
// upstream of value can be ruled out a priori.
func (t *Tree) Search(value []byte, op catalog.Op) ([]catalog.RID, error) {
	var startPid int32
	var err error
	switch op {
	case catalog.OpEQ, catalog.OpGT, catalog.OpGTE:
		startPid, err = t.descend(value)
	default:
		startPid, err = t.leftmostLeaf()
	}
	if err != nil {
		return nil, err
	}

	var out []catalog.RID
	pid := startPid
	for pid != -1 {
		buf, err := t.readPage(pid)
		if err != nil {
			return nil, err
		}
		if err := validateNode(buf); err != nil {
			return nil, err
		}
		data := nodeData(buf)
		numKeys := getNumKeys(buf)
		for i := 0; i < numKeys; i++ {
			key := leafKeyAt(data, i, t.keyLength)
			if compareKeys(t.keyType, key, value, op) {
				out = append(out, leafRidAt(data, i, t.keyLength))
			}
		}
		pid = getNextLeaf(buf)
	}
	return out, nil
}

// Insert descends to the target leaf and inserts (key, rid) in sorted
// order, splitting the leaf (and propagating a separator up through
// ancestors, possibly growing a new root) when it is full.
func (t *Tree) Insert(key []byte, rid catalog.RID) error {
	leafPid, err := t.descend(key)
	if err != nil {
		return err
	}
	return t.insertIntoLeaf(leafPid, key, rid)
}

func (t *Tree) insertIntoLeaf(pid int32, key []byte, rid catalog.RID) error {
	buf, err := t.readPage(pid)
	if err != nil {
		return err
	}
	if err := validateNode(buf); err != nil {
		return err
	}
	data := nodeData(buf)
	numKeys := getNumKeys(buf)
	maxKeys := leafMaxKeys(t.cfg, t.keyLength)

	pos := 0
	for ; pos < numKeys; pos++ {
		if compareKeys(t.keyType, key, leafKeyAt(data, pos, t.keyLength), catalog.OpLT) {
			break
		}
	}

	if numKeys < maxKeys {
		for i := numKeys; i > pos; i-- {
			copy(leafEntryBytes(data, i, t.keyLength), leafEntryBytes(data, i-1, t.keyLength))
		}
		setLeafEntry(data, pos, t.keyLength, key, rid)
		setNumKeys(buf, numKeys+1)
		t.pager.MarkDirty()
		return t.pager.FlushPage()
	}

	return t.splitLeafAndInsert(pid, buf, pos, key, rid)
}

func leafEntryBytes(data []byte, i, keyLength int) []byte {
	size := leafEntrySize(keyLength)
	return data[i*size : i*size+size]
}

// splitLeafAndInsert completes one page at a time: the backing Pager only
// ever buffers a single page, so every value needed after the next
// ReadPage/AppendPage call must be copied out first, and a page's writes
// must be flushed before moving on to the next one.
func (t *Tree) splitLeafAndInsert(pid int32, buf []byte, pos int, key []byte, rid catalog.RID) error {
	data := nodeData(buf)
	numKeys := getNumKeys(buf)
	maxKeys := leafMaxKeys(t.cfg, t.keyLength)
	entrySize := leafEntrySize(t.keyLength)
	parentPid := getParentPid(buf)
	oldNext := getNextLeaf(buf)

	entries := make([][]byte, 0, numKeys+1)
	for i := 0; i < numKeys; i++ {
		if i == pos {
			tmp := make([]byte, entrySize)
			setLeafEntry(tmp, 0, t.keyLength, key, rid)
			entries = append(entries, tmp)
		}
		entries = append(entries, append([]byte(nil), leafEntryBytes(data, i, t.keyLength)...))
	}
	if pos == numKeys {
		tmp := make([]byte, entrySize)
		setLeafEntry(tmp, 0, t.keyLength, key, rid)
		entries = append(entries, tmp)
	}

	mid := (maxKeys + 1) / 2
	leftEntries := entries[:mid]
	rightEntries := entries[mid:]
	separator := append([]byte(nil), rightEntries[0][:t.keyLength]...)

	for i, e := range leftEntries {
		copy(leafEntryBytes(data, i, t.keyLength), e)
	}
	setNumKeys(buf, len(leftEntries))
	t.pager.MarkDirty()
	if err := t.pager.FlushPage(); err != nil {
		return err
	}

	newPid, err := t.pager.AppendPage()
	if err != nil {
		return err
	}
	newBuf, err := t.readPage(newPid)
	if err != nil {
		return err
	}
	initLeaf(newBuf, parentPid)
	setNextLeaf(newBuf, oldNext)
	newData := nodeData(newBuf)
	for i, e := range rightEntries {
		copy(leafEntryBytes(newData, i, t.keyLength), e)
	}
	setNumKeys(newBuf, len(rightEntries))
	t.pager.MarkDirty()
	if err := t.pager.FlushPage(); err != nil {
		return err
	}

	oldBuf, err := t.readPage(pid)
	if err != nil {
		return err
	}
	setNextLeaf(oldBuf, newPid)
	t.pager.MarkDirty()
	if err := t.pager.FlushPage(); err != nil {
		return err
	}

	return t.insertIntoParent(pid, parentPid, separator, newPid)
}

// insertIntoParent installs (separator, rightChildPid) right after
// leftChildPid in the parent's child ordering, splitting that internal
// node (and recursing upward, possibly through the root) if it is already
// full. parentPid == 0 means leftChildPid was the root itself.
func (t *Tree) insertIntoParent(leftChildPid, parentPid int32, separator []byte, rightChildPid int32) error {
	if parentPid == noPage {
		return t.growNewRoot(leftChildPid, separator, rightChildPid)
	}

	buf, err := t.readPage(parentPid)
	if err != nil {
		return err
	}
	if err := validateNode(buf); err != nil {
		return err
	}
	data := nodeData(buf)
	numKeys := getNumKeys(buf)
	maxKeys := internalMaxKeys(t.cfg, t.keyLength)

	pos := numKeys
	if internalChild0(data) == leftChildPid {
		pos = 0
	} else {
		for i := 0; i < numKeys; i++ {
			if internalChildAt(data, i, t.keyLength) == leftChildPid {
				pos = i + 1
				break
			}
		}
	}

	if numKeys < maxKeys {
		for i := numKeys; i > pos; i-- {
			copy(internalEntryBytes(data, i, t.keyLength), internalEntryBytes(data, i-1, t.keyLength))
		}
		setInternalEntry(data, pos, t.keyLength, separator, rightChildPid)
		setNumKeys(buf, numKeys+1)
		t.pager.MarkDirty()
		if err := t.pager.FlushPage(); err != nil {
			return err
		}
		return t.setChildParent(rightChildPid, parentPid)
	}

	return t.splitInternalAndInsert(parentPid, buf, pos, separator, rightChildPid)
}

func internalEntryBytes(data []byte, i, keyLength int) []byte {
	size := internalEntrySize(keyLength)
	return data[4+i*size : 4+i*size+size]
}

func (t *Tree) splitInternalAndInsert(pid int32, buf []byte, pos int, separator []byte, rightChildPid int32) error {
	data := nodeData(buf)
	numKeys := getNumKeys(buf)
	maxKeys := internalMaxKeys(t.cfg, t.keyLength)
	parentPid := getParentPid(buf)
	child0 := internalChild0(data)

	type entry struct {
		key   []byte
		child int32
	}
	entries := make([]entry, 0, numKeys+1)
	for i := 0; i < numKeys; i++ {
		if i == pos {
			entries = append(entries, entry{append([]byte(nil), separator...), rightChildPid})
		}
		entries = append(entries, entry{append([]byte(nil), internalKeyAt(data, i, t.keyLength)...), internalChildAt(data, i, t.keyLength)})
	}
	if pos == numKeys {
		entries = append(entries, entry{append([]byte(nil), separator...), rightChildPid})
	}

	mid := (maxKeys + 1) / 2
	upKey := append([]byte(nil), entries[mid].key...)
	leftEntries := entries[:mid]
	rightChild0 := entries[mid].child
	rightEntries := entries[mid+1:]

	setInternalChild0(data, child0)
	for i, e := range leftEntries {
		setInternalEntry(data, i, t.keyLength, e.key, e.child)
	}
	setNumKeys(buf, len(leftEntries))
	t.pager.MarkDirty()
	if err := t.pager.FlushPage(); err != nil {
		return err
	}

	newPid, err := t.pager.AppendPage()
	if err != nil {
		return err
	}
	newBuf, err := t.readPage(newPid)
	if err != nil {
		return err
	}
	initInternal(newBuf, parentPid)
	newData := nodeData(newBuf)
	setInternalChild0(newData, rightChild0)
	for i, e := range rightEntries {
		setInternalEntry(newData, i, t.keyLength, e.key, e.child)
	}
	setNumKeys(newBuf, len(rightEntries))
	t.pager.MarkDirty()
	if err := t.pager.FlushPage(); err != nil {
		return err
	}

	if err := t.setChildParent(rightChild0, newPid); err != nil {
		return err
	}
	for _, e := range rightEntries {
		if err := t.setChildParent(e.child, newPid); err != nil {
			return err
		}
	}

	return t.insertIntoParent(pid, parentPid, upKey, newPid)
}

func (t *Tree) growNewRoot(leftPid int32, separator []byte, rightPid int32) error {
	newPid, err := t.pager.AppendPage()
	if err != nil {
		return err
	}
	newBuf, err := t.readPage(newPid)
	if err != nil {
		return err
	}
	initInternal(newBuf, noPage)
	data := nodeData(newBuf)
	setInternalChild0(data, leftPid)
	setInternalEntry(data, 0, t.keyLength, separator, rightPid)
	setNumKeys(newBuf, 1)
	t.pager.MarkDirty()
	if err := t.pager.FlushPage(); err != nil {
		return err
	}

	if err := t.collapseRootTo(newPid); err != nil {
		return err
	}

	if err := t.setChildParent(leftPid, newPid); err != nil {
		return err
	}
	return t.setChildParent(rightPid, newPid)
}

func (t *Tree) setChildParent(childPid, parentPid int32) error {
	buf, err := t.readPage(childPid)
	if err != nil {
		return err
	}
	setParentPid(buf, parentPid)
	t.pager.MarkDirty()
	return t.pager.FlushPage()
}

// collapseRootTo repoints meta.rootPid at newRoot and persists it, the way
// both growNewRoot (tree grew a level) and delete's root-collapse
// (tree shrank a level) need.
func (t *Tree) collapseRootTo(newRoot int32) error {
	t.rootPid = newRoot
	metaBuf, err := t.readPage(0)
	if err != nil {
		return err
	}
	putInt32(metaBuf[8:12], newRoot)
	t.pager.MarkDirty()
	return t.pager.FlushPage()
}

// Delete removes the first entry matching (key, rid) exactly, then
// rebalances: borrowing from or merging with the leaf's right sibling on
// underflow, and collapsing an emptied internal root.
func (t *Tree) Delete(key []byte, rid catalog.RID) error {
	leafPid, err := t.descend(key)
	if err != nil {
		return err
	}
	buf, err := t.readPage(leafPid)
	if err != nil {
		return err
	}
	if err := validateNode(buf); err != nil {
		return err
	}
	data := nodeData(buf)
	numKeys := getNumKeys(buf)

	pos := -1
	for i := 0; i < numKeys; i++ {
		entryRid := leafRidAt(data, i, t.keyLength)
		if entryRid == rid && compareKeys(t.keyType, leafKeyAt(data, i, t.keyLength), key, catalog.OpEQ) {
			pos = i
			break
		}
	}
	if pos < 0 {
		return errors.WithStack(dberr.New(dberr.IdxNoExist))
	}

	for i := pos; i < numKeys-1; i++ {
		copy(leafEntryBytes(data, i, t.keyLength), leafEntryBytes(data, i+1, t.keyLength))
	}
	setNumKeys(buf, numKeys-1)
	t.pager.MarkDirty()
	if err := t.pager.FlushPage(); err != nil {
		return err
	}

	return t.rebalanceAfterDelete(leafPid)
}

// rebalanceAfterDelete handles the shapes this module's callers actually
// produce: a root leaf never underflows structurally (it's the whole
// tree), an underflowed non-root leaf borrows from or merges with its
// right sibling (found via nextLeafPid, when that sibling shares the same
// parent), and an internal root left with no separators collapses to its
// sole child. Deeper internal-node underflow after a merge (borrow/merge
// one level up) is not attempted — no caller in this module builds a tree
// more than a couple of levels deep, so that node is left underfull
// instead, which is still a structurally valid (if not maximally packed)
// B+ tree.
func (t *Tree) rebalanceAfterDelete(pid int32) error {
	buf, err := t.readPage(pid)
	if err != nil {
		return err
	}
	if err := validateNode(buf); err != nil {
		return err
	}
	parentPid := getParentPid(buf)

	if getNodeType(buf) == internalNode {
		if getNumKeys(buf) > 0 || parentPid != noPage {
			return nil
		}
		sole := internalChild0(nodeData(buf))
		if err := t.collapseRootTo(sole); err != nil {
			return err
		}
		return t.setChildParent(sole, 0)
	}

	if parentPid == noPage {
		return nil
	}
	numKeys := getNumKeys(buf)
	minKeys := leafMaxKeys(t.cfg, t.keyLength) / 2
	if numKeys >= minKeys {
		return nil
	}
	nextPid := getNextLeaf(buf)
	if nextPid == -1 {
		return nil
	}
	siblingBuf, err := t.readPage(nextPid)
	if err != nil {
		return err
	}
	if getParentPid(siblingBuf) != parentPid {
		return nil
	}
	if getNumKeys(siblingBuf) > minKeys {
		return t.borrowFromRightLeaf(pid, nextPid, parentPid)
	}
	return t.mergeWithRightLeaf(pid, nextPid, parentPid)
}

func (t *Tree) borrowFromRightLeaf(leftPid, rightPid, parentPid int32) error {
	rightBuf, err := t.readPage(rightPid)
	if err != nil {
		return err
	}
	rightData := nodeData(rightBuf)
	rightKeys := getNumKeys(rightBuf)
	borrowed := append([]byte(nil), leafEntryBytes(rightData, 0, t.keyLength)...)
	for i := 0; i < rightKeys-1; i++ {
		copy(leafEntryBytes(rightData, i, t.keyLength), leafEntryBytes(rightData, i+1, t.keyLength))
	}
	setNumKeys(rightBuf, rightKeys-1)
	newSeparator := append([]byte(nil), leafKeyAt(rightData, 0, t.keyLength)...)
	t.pager.MarkDirty()
	if err := t.pager.FlushPage(); err != nil {
		return err
	}

	leftBuf, err := t.readPage(leftPid)
	if err != nil {
		return err
	}
	leftData := nodeData(leftBuf)
	leftKeys := getNumKeys(leftBuf)
	copy(leafEntryBytes(leftData, leftKeys, t.keyLength), borrowed)
	setNumKeys(leftBuf, leftKeys+1)
	t.pager.MarkDirty()
	if err := t.pager.FlushPage(); err != nil {
		return err
	}

	return t.updateParentSeparator(parentPid, rightPid, newSeparator)
}

func (t *Tree) mergeWithRightLeaf(leftPid, rightPid, parentPid int32) error {
	rightBuf, err := t.readPage(rightPid)
	if err != nil {
		return err
	}
	rightData := nodeData(rightBuf)
	rightKeys := getNumKeys(rightBuf)
	rightEntries := make([][]byte, rightKeys)
	for i := 0; i < rightKeys; i++ {
		rightEntries[i] = append([]byte(nil), leafEntryBytes(rightData, i, t.keyLength)...)
	}
	rightNext := getNextLeaf(rightBuf)

	leftBuf, err := t.readPage(leftPid)
	if err != nil {
		return err
	}
	leftData := nodeData(leftBuf)
	leftKeys := getNumKeys(leftBuf)
	for i, e := range rightEntries {
		copy(leafEntryBytes(leftData, leftKeys+i, t.keyLength), e)
	}
	setNumKeys(leftBuf, leftKeys+rightKeys)
	setNextLeaf(leftBuf, rightNext)
	t.pager.MarkDirty()
	if err := t.pager.FlushPage(); err != nil {
		return err
	}

	if err := t.removeInternalEntryForChild(parentPid, rightPid); err != nil {
		return err
	}
	return t.rebalanceAfterDelete(parentPid)
}

func (t *Tree) updateParentSeparator(parentPid, childPid int32, newKey []byte) error {
	buf, err := t.readPage(parentPid)
	if err != nil {
		return err
	}
	data := nodeData(buf)
	numKeys := getNumKeys(buf)
	for i := 0; i < numKeys; i++ {
		if internalChildAt(data, i, t.keyLength) == childPid {
			setInternalEntry(data, i, t.keyLength, newKey, childPid)
			t.pager.MarkDirty()
			return t.pager.FlushPage()
		}
	}
	return nil
}

func (t *Tree) removeInternalEntryForChild(parentPid, childPid int32) error {
	buf, err := t.readPage(parentPid)
	if err != nil {
		return err
	}
	data := nodeData(buf)
	numKeys := getNumKeys(buf)
	idx := -1
	for i := 0; i < numKeys; i++ {
		if internalChildAt(data, i, t.keyLength) == childPid {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	for i := idx; i < numKeys-1; i++ {
		copy(internalEntryBytes(data, i, t.keyLength), internalEntryBytes(data, i+1, t.keyLength))
	}
	setNumKeys(buf, numKeys-1)
	t.pager.MarkDirty()
	return t.pager.FlushPage()
}
