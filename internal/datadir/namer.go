package datadir

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Namer hands out database directory names of the form db<unix millis>. A name taken on disk
// or already handed out gets a numeric suffix: db1638487692420_2, _3, and so on.
type Namer struct {
	root string
	now  func() time.Time

	mu     sync.Mutex
	issued map[string]struct{}
}

// NewNamer creates a namer for databases below root. A nil clock means time.Now.
func NewNamer(root string, now func() time.Time) *Namer {
	if now == nil {
		now = time.Now
	}
	return &Namer{
		root:   root,
		now:    now,
		issued: make(map[string]struct{}),
	}
}

// Next returns a directory name that neither exists below the root nor was returned before.
func (n *Namer) Next() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	base := "db" + strconv.FormatInt(n.now().UnixMilli(), 10)
	name := base
	for count := 2; n.taken(name); count++ {
		name = base + "_" + strconv.Itoa(count)
	}
	n.issued[name] = struct{}{}
	return name
}

func (n *Namer) taken(name string) bool {
	if _, ok := n.issued[name]; ok {
		return true
	}
	_, err := os.Stat(filepath.Join(n.root, name))
	return err == nil
}
