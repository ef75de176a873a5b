// Package cache implements §4.2's open-relation cache: a fixed MAXOPEN-slot
// table mapping relation name to {relcat row, file handle, attribute list,
// valid/dirty bits, last-access timestamp}. It is the teacher's
// buffer/manager.go LRU bookkeeping (container/list, a lookup map, an
// eviction victim pick) repurposed from page frames to open-relation slots;
// slots 0 and 1 (relcat, attrcat) are pinned and never considered for
// eviction.
package cache

import (
	"container/list"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"minirel/catalog"
	"minirel/config"
	"minirel/dberr"
	"minirel/disk"
	"minirel/freemap"
)

// RelCatSlot and AttrCatSlot are the fixed indices reserved for the two
// system catalogs; they are created on database open and never evicted.
const (
	RelCatSlot  = 0
	AttrCatSlot = 1
)

// AttrDesc is one entry of an open relation's attribute list: a copy of the
// AttrCatRec plus the RID of its row in attrcat, so updates (e.g. BuildIndex
// flipping HasIndex) can be written back.
type AttrDesc struct {
	Rec          catalog.AttrCatRec
	AttrCatRID   catalog.RID
}

// Slot is one entry of the open-relation cache.
type Slot struct {
	RelCatRec  catalog.RelCatRec
	RelCatRID  catalog.RID
	Pager      *disk.Pager
	FreeMap    *freemap.Map // nil if this relation has none
	AttrList   []AttrDesc
	Valid      bool
	Dirty      bool
	timestamp  int64
	el         *list.Element
}

// Catalog is the open-relation cache. dir is the database directory all
// relation and freemap files live under.
type Catalog struct {
	cfg *config.Config
	dir string
	log *logrus.Logger

	mu      sync.Mutex
	slots   []*Slot
	byName  map[string]int
	repl    *list.List // LRU order of user slots (2..MaxOpen-1), front = oldest
	clock   int64

	// for loading relcat/attrcat rows without re-opening themselves
	relCatScan func() (*Slot, error)
}

// New builds an empty cache table with cfg.MaxOpen slots. Slots 0 and 1 are
// populated separately via BootstrapCats once relcat/attrcat are opened.
func New(cfg *config.Config, dir string, log *logrus.Logger) *Catalog {
	c := &Catalog{
		cfg:    cfg,
		dir:    dir,
		log:    log,
		slots:  make([]*Slot, cfg.MaxOpen),
		byName: make(map[string]int),
		repl:   list.New(),
	}
	for i := range c.slots {
		c.slots[i] = &Slot{}
	}
	return c
}

func (c *Catalog) relPath(name string) string {
	return filepath.Join(c.dir, name)
}

// BootstrapCats installs already-open relcat/attrcat pagers into slots 0 and
// 1, along with the RID of each catalog's own self-describing row so a
// later CloseCats can write it back. Called once by schema.OpenDB.
func (c *Catalog) BootstrapCats(relcatRec, attrcatRec catalog.RelCatRec, relcatRID, attrcatRID catalog.RID, relcatPager, attrcatPager *disk.Pager) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[RelCatSlot] = &Slot{RelCatRec: relcatRec, RelCatRID: relcatRID, Pager: relcatPager, Valid: true}
	c.slots[AttrCatSlot] = &Slot{RelCatRec: attrcatRec, RelCatRID: attrcatRID, Pager: attrcatPager, Valid: true}
	c.byName["relcat"] = RelCatSlot
	c.byName["attrcat"] = AttrCatSlot
}

// Slot returns the cache entry at relNum, failing InvalidRelNum if it isn't
// currently valid.
func (c *Catalog) Slot(relNum int) (*Slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if relNum < 0 || relNum >= len(c.slots) || !c.slots[relNum].Valid {
		return nil, errors.WithStack(dberr.New(dberr.InvalidRelNum))
	}
	return c.slots[relNum], nil
}

// Lookup returns the slot index for an already-open relation, or -1.
func (c *Catalog) Lookup(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, ok := c.byName[name]; ok {
		c.touch(idx)
		return idx
	}
	return -1
}

func (c *Catalog) touch(idx int) {
	c.clock++
	c.slots[idx].timestamp = c.clock
	if c.slots[idx].el != nil {
		c.repl.MoveToBack(c.slots[idx].el)
	}
}

// pickVictim scans slots 2..MaxOpen-1 for the first invalid slot, else the
// one with the smallest timestamp (LRU), per §4.2 step 2.
func (c *Catalog) pickVictim() int {
	for i := AttrCatSlot + 1; i < len(c.slots); i++ {
		if !c.slots[i].Valid {
			return i
		}
	}
	victim := AttrCatSlot + 1
	for i := AttrCatSlot + 2; i < len(c.slots); i++ {
		if c.slots[i].timestamp < c.slots[victim].timestamp {
			victim = i
		}
	}
	return victim
}

// RelationNames enumerates every relation currently describable by relcat,
// exposed for the fuzzy "did you mean?" hook external tooling builds on.
func (c *Catalog) RelationNames(scan func(func(catalog.RelCatRec) bool) error) ([]string, error) {
	var names []string
	err := scan(func(r catalog.RelCatRec) bool {
		names = append(names, r.RelName)
		return true
	})
	return names, err
}

// AttributeNames enumerates the attribute names of an open relation's
// attribute list, for the same fuzzy-match hook.
func (c *Catalog) AttributeNames(relNum int) ([]string, error) {
	s, err := c.Slot(relNum)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(s.AttrList))
	for i, a := range s.AttrList {
		names[i] = a.Rec.AttrName
	}
	return names, nil
}

// MaxOpen returns the configured cache size.
func (c *Catalog) MaxOpen() int { return c.cfg.MaxOpen }
