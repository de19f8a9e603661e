package daemon

import (
	"github.com/tidwall/buntdb"

	"github.com/aistore/zexec/cmn"
)

// Registry persists the exe-fingerprint -> socket-path mapping across
// process restarts, so a freshly started node can rediscover daemons a
// prior process booted (teacher dep `tidwall/buntdb`, in-process embedded
// store, matching its use elsewhere in the pack for small persistent
// indexes).
type Registry struct {
	db *buntdb.DB
}

// OpenRegistry opens (creating if absent) the buntdb file at path.
func OpenRegistry(path string) (*Registry, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, cmn.Wrap(err, "daemon: open registry "+path)
	}
	return &Registry{db: db}, nil
}

func (r *Registry) Close() error { return r.db.Close() }

// Lookup returns the socket path registered for fingerprint, if any.
func (r *Registry) Lookup(fingerprint string) (string, bool) {
	var (
		path  string
		found bool
	)
	r.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(fingerprint)
		if err == nil {
			path, found = v, true
		}
		return nil
	})
	return path, found
}

// Put records the socket path a daemon matching fingerprint is bound to.
func (r *Registry) Put(fingerprint, socketPath string) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(fingerprint, socketPath, nil)
		return err
	})
}

// Delete removes fingerprint's entry, e.g. after a terminal restart failure.
func (r *Registry) Delete(fingerprint string) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(fingerprint)
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

// Fingerprint derives the registry key for a node/exe pair: the
// executable path plus a content fingerprint of its channel device list,
// so two requests against the same executable but different channel sets
// never collide on one daemon socket.
func Fingerprint(exe string, channelDevices []string, channelSizes []int64) string {
	return exe + "#" + fingerprintHex(channelDevices, channelSizes)
}
