// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

// Package bolt provides a persistent auth.Store over bbolt, an embedded
// ACID key-value engine with a single writer and concurrent snapshot
// readers.
//
// # Schema
//
// Five buckets make up the store:
//
//	users          user id (16 bytes) -> JSON User
//	usernames      username           -> user id
//	sessions       session id         -> JSON Session
//	user_sessions  per-user nested bucket: session id -> nil (multimap index)
//	session_user   session id         -> user id (reverse index)
//
// The last three of those are derived state. Every write path opens one
// write transaction, mutates each bucket that needs to change, and commits
// atomically; an error at any point rolls the whole transaction back, so
// the indexes can never drift from their primary records short of a bug.
package bolt

import (
	"context"
	"encoding/json"
	"net/netip"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.etcd.io/bbolt"

	"github.com/Raforawesome/bento/internal/auth"
)

// Bucket names.
var (
	bucketUsers        = []byte("users")
	bucketUsernames    = []byte("usernames")
	bucketSessions     = []byte("sessions")
	bucketUserSessions = []byte("user_sessions")
	bucketSessionUser  = []byte("session_user")
)

// Store is a bbolt-backed auth.Store.
type Store struct {
	db  *bbolt.DB
	cfg auth.StoreConfig
}

// Open opens (or creates) the store at path and ensures all buckets
// exist. Reopening an existing file is idempotent.
func Open(path string, cfg auth.StoreConfig) (*Store, error) {
	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, oops.Code("AUTH_STORE_OPEN_FAILED").
			With("path", path).
			Wrap(err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketUsernames, bucketSessions, bucketUserSessions, bucketSessionUser} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return oops.Code("AUTH_STORE_INIT_FAILED").
					With("bucket", string(name)).
					Wrap(err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, cfg: cfg.Normalized()}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return oops.Code("AUTH_STORE_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

// MaxSessionsPerUser returns the static per-user session cap.
func (s *Store) MaxSessionsPerUser() int {
	return s.cfg.MaxSessionsPerUser
}

func marshalUser(u auth.User) ([]byte, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return nil, oops.Code("AUTH_ENCODE_FAILED").
			With("record", "user").
			Wrap(err)
	}
	return b, nil
}

func unmarshalUser(b []byte) (auth.User, error) {
	var u auth.User
	if err := json.Unmarshal(b, &u); err != nil {
		return auth.User{}, oops.Code("AUTH_DECODE_FAILED").
			With("record", "user").
			Wrap(err)
	}
	return u, nil
}

func marshalSession(sess auth.Session) ([]byte, error) {
	b, err := json.Marshal(sess)
	if err != nil {
		return nil, oops.Code("AUTH_ENCODE_FAILED").
			With("record", "session").
			Wrap(err)
	}
	return b, nil
}

func unmarshalSession(b []byte) (auth.Session, error) {
	var sess auth.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return auth.Session{}, oops.Code("AUTH_DECODE_FAILED").
			With("record", "session").
			Wrap(err)
	}
	return sess, nil
}

// userKey returns the 16-byte big-endian ULID key. ULIDs are
// creation-ordered, so user records sort by creation time on disk.
func userKey(id ulid.ULID) []byte {
	key := make([]byte, len(id))
	copy(key, id[:])
	return key
}

// CreateUser creates a user, checking username uniqueness and inserting
// the record plus its index entry in one write transaction.
func (s *Store) CreateUser(ctx context.Context, username string, hash auth.PasswordHash, role auth.Role) (auth.User, error) {
	if err := ctx.Err(); err != nil {
		return auth.User{}, err
	}

	user := auth.User{
		ID:           ulid.Make(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		usernames := tx.Bucket(bucketUsernames)
		if usernames.Get([]byte(username)) != nil {
			return auth.ErrUserExists
		}

		payload, err := marshalUser(user)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketUsers).Put(userKey(user.ID), payload); err != nil {
			return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "users").Wrap(err)
		}
		if err := usernames.Put([]byte(username), userKey(user.ID)); err != nil {
			return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "usernames").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return auth.User{}, err
	}

	return user, nil
}

// GetUserByID returns the user with the given id.
func (s *Store) GetUserByID(ctx context.Context, id ulid.ULID) (auth.User, error) {
	if err := ctx.Err(); err != nil {
		return auth.User{}, err
	}

	var user auth.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket(bucketUsers).Get(userKey(id))
		if payload == nil {
			return auth.ErrNotFound
		}
		var err error
		user, err = unmarshalUser(payload)
		return err
	})
	if err != nil {
		return auth.User{}, err
	}
	return user, nil
}

// GetUserByUsername resolves the username through the secondary index. An
// index entry whose primary record is missing is reported to the caller as
// not-found, but logged as a data-integrity anomaly: it means the two
// buckets drifted, which indicates a bug rather than ordinary absence.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (auth.User, error) {
	if err := ctx.Err(); err != nil {
		return auth.User{}, err
	}

	var user auth.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		idKey := tx.Bucket(bucketUsernames).Get([]byte(username))
		if idKey == nil {
			return auth.ErrNotFound
		}

		payload := tx.Bucket(bucketUsers).Get(idKey)
		if payload == nil {
			s.cfg.Logger.Error("data integrity anomaly: username indexed but user record missing",
				"username", username,
			)
			return auth.ErrNotFound
		}

		var err error
		user, err = unmarshalUser(payload)
		return err
	})
	if err != nil {
		return auth.User{}, err
	}
	return user, nil
}

// SetPasswordHash replaces the user's credential in place.
func (s *Store) SetPasswordHash(ctx context.Context, id ulid.ULID, newHash auth.PasswordHash) (auth.PasswordHash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		payload := users.Get(userKey(id))
		if payload == nil {
			return auth.ErrNotFound
		}

		user, err := unmarshalUser(payload)
		if err != nil {
			return err
		}
		user.PasswordHash = newHash

		updated, err := marshalUser(user)
		if err != nil {
			return err
		}
		if err := users.Put(userKey(id), updated); err != nil {
			return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "users").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return newHash, nil
}

// DeleteUser removes the user record, its username index entry, and every
// session it owns, in one transaction.
func (s *Store) DeleteUser(ctx context.Context, id ulid.ULID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		payload := users.Get(userKey(id))
		if payload == nil {
			return auth.ErrNotFound
		}

		user, err := unmarshalUser(payload)
		if err != nil {
			return err
		}

		if err := users.Delete(userKey(id)); err != nil {
			return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "users").Wrap(err)
		}
		if err := tx.Bucket(bucketUsernames).Delete([]byte(user.Username)); err != nil {
			return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "usernames").Wrap(err)
		}

		return s.removeAllUserSessions(tx, id)
	})
}

// IssueSession is the most intricate transaction here. In one atomic unit
// it verifies the user exists, walks the user's session ids via the
// multimap index, batch-removes the expired and orphaned ones, enforces
// the cap on the active count that remains, and inserts the new session
// into the sessions bucket and both indexes.
func (s *Store) IssueSession(ctx context.Context, userID ulid.ULID, ip netip.Addr) (auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return auth.Session{}, err
	}

	id, err := auth.NewSessionID()
	if err != nil {
		return auth.Session{}, err
	}

	var (
		session auth.Session
		reaped  int
	)
	err = s.db.Update(func(tx *bbolt.Tx) error {
		reaped = 0
		now := s.cfg.Clock()

		if tx.Bucket(bucketUsers).Get(userKey(userID)) == nil {
			return auth.ErrNotFound
		}

		sessions := tx.Bucket(bucketSessions)
		index := tx.Bucket(bucketUserSessions).Bucket(userKey(userID))

		active := 0
		var reap []auth.SessionID
		if index != nil {
			err := index.ForEach(func(sid, _ []byte) error {
				payload := sessions.Get(sid)
				if payload == nil {
					// Indexed but missing from the sessions bucket:
					// orphaned entry, clean it up with the expired ones.
					reap = append(reap, auth.SessionID(sid))
					return nil
				}
				sess, err := unmarshalSession(payload)
				if err != nil {
					return err
				}
				if sess.IsExpiredAt(now) {
					reap = append(reap, sess.ID)
				} else {
					active++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}

		for _, sid := range reap {
			if err := s.removeSession(tx, userID, sid); err != nil {
				return err
			}
		}
		reaped = len(reap)

		if active >= s.cfg.MaxSessionsPerUser {
			return auth.ErrSessionLimitReached
		}

		session = auth.Session{
			ID:        id,
			UserID:    userID,
			IP:        ip,
			CreatedAt: now,
			ExpiresAt: now.Add(s.cfg.SessionTTL),
		}

		payload, err := marshalSession(session)
		if err != nil {
			return err
		}
		if err := sessions.Put([]byte(id), payload); err != nil {
			return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "sessions").Wrap(err)
		}

		userIndex, err := tx.Bucket(bucketUserSessions).CreateBucketIfNotExists(userKey(userID))
		if err != nil {
			return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "user_sessions").Wrap(err)
		}
		if err := userIndex.Put([]byte(id), nil); err != nil {
			return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "user_sessions").Wrap(err)
		}
		if err := tx.Bucket(bucketSessionUser).Put([]byte(id), userKey(userID)); err != nil {
			return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "session_user").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return auth.Session{}, err
	}
	// Report reaps only after the transaction committed; a rollback
	// restores the deleted records.
	if reaped > 0 {
		s.cfg.OnSessionsReaped(reaped)
	}

	return session, nil
}

// FetchSession looks the session up with a read-only transaction first; a
// write transaction is taken only when an expired record needs deleting.
// State may change between the two transactions, so the cleanup re-reads
// under the write lock.
func (s *Store) FetchSession(ctx context.Context, id auth.SessionID) (auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return auth.Session{}, err
	}

	var (
		session auth.Session
		expired bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket(bucketSessions).Get([]byte(id))
		if payload == nil {
			return auth.ErrInvalidSession
		}
		sess, err := unmarshalSession(payload)
		if err != nil {
			return err
		}
		if sess.IsExpiredAt(s.cfg.Clock()) {
			expired = true
			return nil
		}
		session = sess
		return nil
	})
	if err != nil {
		return auth.Session{}, err
	}

	if !expired {
		return session, nil
	}

	if err := s.cleanupExpired(id); err != nil {
		return auth.Session{}, err
	}
	return auth.Session{}, auth.ErrInvalidSession
}

// ExtendSession validates optimistically under a read transaction and
// escalates to a write transaction for the extension, re-checking expiry
// at the moment of the write since the session may have expired in
// between.
func (s *Store) ExtendSession(ctx context.Context, id auth.SessionID) (auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return auth.Session{}, err
	}

	var expired bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket(bucketSessions).Get([]byte(id))
		if payload == nil {
			return auth.ErrInvalidSession
		}
		sess, err := unmarshalSession(payload)
		if err != nil {
			return err
		}
		expired = sess.IsExpiredAt(s.cfg.Clock())
		return nil
	})
	if err != nil {
		return auth.Session{}, err
	}

	if expired {
		if err := s.cleanupExpired(id); err != nil {
			return auth.Session{}, err
		}
		return auth.Session{}, auth.ErrInvalidSession
	}

	var session auth.Session
	err = s.db.Update(func(tx *bbolt.Tx) error {
		now := s.cfg.Clock()

		sessions := tx.Bucket(bucketSessions)
		payload := sessions.Get([]byte(id))
		if payload == nil {
			return auth.ErrInvalidSession
		}
		sess, err := unmarshalSession(payload)
		if err != nil {
			return err
		}
		if sess.IsExpiredAt(now) {
			// Expired between the read check and this write transaction.
			// Deleting here would dirty the transaction on what is
			// otherwise a validation failure, so the record is left for
			// the next FetchSession or IssueSession to reap.
			return auth.ErrInvalidSession
		}

		sess.ExpiresAt = now.Add(s.cfg.SessionTTL)
		updated, err := marshalSession(sess)
		if err != nil {
			return err
		}
		if err := sessions.Put([]byte(id), updated); err != nil {
			return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "sessions").Wrap(err)
		}

		session = sess
		return nil
	})
	if err != nil {
		return auth.Session{}, err
	}

	return session, nil
}

// RevokeSession deletes the session from all three session buckets. The
// reverse index resolves the owner without deserializing the record.
func (s *Store) RevokeSession(ctx context.Context, id auth.SessionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		idKey := tx.Bucket(bucketSessionUser).Get([]byte(id))
		if idKey == nil {
			return auth.ErrInvalidSession
		}

		var userID ulid.ULID
		copy(userID[:], idKey)

		return s.removeSession(tx, userID, id)
	})
}

// cleanupExpired removes a session observed as expired by a read
// transaction. The record is re-resolved through the reverse index under
// the write lock; if it vanished in the meantime there is nothing to do.
func (s *Store) cleanupExpired(id auth.SessionID) error {
	removed := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		idKey := tx.Bucket(bucketSessionUser).Get([]byte(id))
		if idKey == nil {
			return nil
		}

		var userID ulid.ULID
		copy(userID[:], idKey)

		removed = true
		return s.removeSession(tx, userID, id)
	})
	if err != nil {
		return err
	}
	if removed {
		s.cfg.OnSessionsReaped(1)
	}
	return nil
}

// removeSession deletes one session from the sessions bucket and both
// indexes within the caller's transaction.
func (s *Store) removeSession(tx *bbolt.Tx, userID ulid.ULID, id auth.SessionID) error {
	if err := tx.Bucket(bucketSessions).Delete([]byte(id)); err != nil {
		return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "sessions").Wrap(err)
	}
	if index := tx.Bucket(bucketUserSessions).Bucket(userKey(userID)); index != nil {
		if err := index.Delete([]byte(id)); err != nil {
			return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "user_sessions").Wrap(err)
		}
	}
	if err := tx.Bucket(bucketSessionUser).Delete([]byte(id)); err != nil {
		return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "session_user").Wrap(err)
	}
	return nil
}

// removeAllUserSessions drops every session owned by userID, along with
// the user's whole multimap sub-bucket, within the caller's transaction.
func (s *Store) removeAllUserSessions(tx *bbolt.Tx, userID ulid.ULID) error {
	userSessions := tx.Bucket(bucketUserSessions)
	index := userSessions.Bucket(userKey(userID))
	if index == nil {
		return nil
	}

	var ids []auth.SessionID
	err := index.ForEach(func(sid, _ []byte) error {
		ids = append(ids, auth.SessionID(sid))
		return nil
	})
	if err != nil {
		return oops.Code("AUTH_STORE_READ_FAILED").With("bucket", "user_sessions").Wrap(err)
	}

	for _, sid := range ids {
		if err := tx.Bucket(bucketSessions).Delete([]byte(sid)); err != nil {
			return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "sessions").Wrap(err)
		}
		if err := tx.Bucket(bucketSessionUser).Delete([]byte(sid)); err != nil {
			return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "session_user").Wrap(err)
		}
	}

	if err := userSessions.DeleteBucket(userKey(userID)); err != nil {
		return oops.Code("AUTH_STORE_WRITE_FAILED").With("bucket", "user_sessions").Wrap(err)
	}
	return nil
}

var _ auth.Store = (*Store)(nil)
