// Package bolt is an embedded, persistent provider backed by bbolt.
//
// Each value is stored as expiresAt(unix nano, i64 be; 0 = never) || payload
// (see util.WithExpiry). Expired entries read as misses and are deleted by
// the read that meets them, by Scan, and by Purge.
package bolt

import (
	"context"
	"errors"
	"time"

	"go.etcd.io/bbolt"

	"github.com/unkn0wn-root/rescache/internal/util"
	pr "github.com/unkn0wn-root/rescache/provider"
)

var ErrNilDB = errors.New("bolt provider: nil db")

type Provider struct {
	db      *bbolt.DB
	bucket  []byte
	closeDB bool
	now     func() time.Time
}

var (
	_ pr.Provider = (*Provider)(nil)
	_ pr.Adder    = (*Provider)(nil)
	_ pr.Counter  = (*Provider)(nil)
	_ pr.Scanner  = (*Provider)(nil)
)

type Config struct {
	DB      *bbolt.DB
	Bucket  string // "" => "rescache"
	CloseDB bool   // set true only if this provider exclusively owns the db
}

// Open opens (or creates) the database file at path and owns it.
func Open(path string, timeout time.Duration) (*Provider, error) {
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	p, err := New(Config{DB: db, CloseDB: true})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func New(cfg Config) (*Provider, error) {
	if cfg.DB == nil {
		return nil, ErrNilDB
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "rescache"
	}
	err := cfg.DB.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Provider{db: cfg.DB, bucket: []byte(bucket), closeDB: cfg.CloseDB, now: time.Now}, nil
}

// live returns the payload of raw if it has not expired. raw must be a
// bbolt-owned slice; the result aliases it.
func (p *Provider) live(raw []byte) ([]byte, bool, error) {
	return util.Live(raw, p.now())
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	var found, expired bool
	err := p.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(p.bucket).Get([]byte(key))
		payload, ok, err := p.live(raw)
		if err != nil {
			return err
		}
		if !ok {
			expired = raw != nil
			return nil
		}
		out = append([]byte{}, payload...) // bbolt memory is only valid inside the tx
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if expired {
		_, _ = p.dropExpired([][]byte{[]byte(key)})
	}
	return out, found, nil
}

// dropExpired deletes the given keys that are still expired when the write
// transaction runs; a key rewritten in between is kept.
func (p *Provider) dropExpired(keys [][]byte) (int, error) {
	n := 0
	err := p.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(p.bucket)
		now := p.now()
		for _, k := range keys {
			if !util.Expired(b.Get(k), now) {
				continue
			}
			if err := b.Delete(k); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	err := p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(p.bucket).Put([]byte(key), util.WithExpiry(value, ttl, p.now()))
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	added := false
	err := p.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(p.bucket)
		_, ok, err := p.live(b.Get([]byte(key)))
		if err != nil && !errors.Is(err, util.ErrCorruptEntry) {
			return err
		}
		if ok {
			return nil
		}
		added = true
		return b.Put([]byte(key), util.WithExpiry(value, ttl, p.now()))
	})
	return added && err == nil, err
}

// IncrBy keeps the existing expiry of the counter key. An expired counter
// restarts from zero without expiry.
func (p *Provider) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	var n int64
	err := p.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(p.bucket)
		raw := b.Get([]byte(key))
		cur, ok, err := p.live(raw)
		if err != nil {
			return err
		}
		hdr := make([]byte, util.ExpiryHeader)
		if ok {
			copy(hdr, raw[:util.ExpiryHeader])
		}
		next, v, err := util.AddInt(cur, delta)
		if err != nil {
			return err
		}
		n = v
		return b.Put([]byte(key), append(hdr, next...))
	})
	return n, err
}

func (p *Provider) Del(_ context.Context, key string) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(p.bucket).Delete([]byte(key))
	})
}

// Scan collects matching live keys in a read transaction, then calls fn
// outside of it so fn may write to the store. Expired keys met on the way
// are deleted afterwards.
func (p *Provider) Scan(ctx context.Context, match string, fn func(key string) error) error {
	var keys []string
	var expired [][]byte
	now := p.now()
	err := p.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(p.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if util.Expired(v, now) {
				expired = append(expired, append([]byte{}, k...))
				continue
			}
			if util.Match(match, string(k)) {
				keys = append(keys, string(k))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(expired) > 0 {
		if _, err := p.dropExpired(expired); err != nil {
			return err
		}
	}
	for _, k := range keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

// Purge deletes every expired record and reports how many were removed.
func (p *Provider) Purge(ctx context.Context) (int, error) {
	var expired [][]byte
	now := p.now()
	err := p.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(p.bucket).ForEach(func(k, v []byte) error {
			if util.Expired(v, now) {
				expired = append(expired, append([]byte{}, k...))
			}
			return ctx.Err()
		})
	})
	if err != nil || len(expired) == 0 {
		return 0, err
	}
	return p.dropExpired(expired)
}

// Close releases the database only when this provider owns it.
func (p *Provider) Close(context.Context) error {
	if p.closeDB {
		return p.db.Close()
	}
	return nil
}
