package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AccountStore = (*AccountRepo)(nil)

// AccountRepo is the SQLite implementation of the AccountStore port interface.
// Tokens are encrypted with AES-256-GCM before write and decrypted after read.
type AccountRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil disables every operation that touches tokens.
}

// NewAccountRepo creates an AccountRepo. key must be 32 bytes, or nil to make
// token operations return driven.ErrEncryptionKeyNotSet.
func NewAccountRepo(db *DB, key []byte) *AccountRepo {
	return &AccountRepo{db: db, key: key}
}

// Save inserts the account or replaces the token of the existing login.
func (r *AccountRepo) Save(ctx context.Context, login, token string) (model.Account, error) {
	encrypted, err := r.encrypt(token)
	if err != nil {
		return model.Account{}, err
	}

	const query = `
		INSERT INTO accounts (login, token, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (login) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at
		RETURNING id, created_at
	`
	now := formatTime(time.Now())
	acct := model.Account{Login: login, Token: token}
	var createdAt string
	if err := r.db.Writer.QueryRowContext(ctx, query, login, encrypted, now, now).Scan(&acct.ID, &createdAt); err != nil {
		return model.Account{}, fmt.Errorf("save account %q: %w", login, err)
	}

	if acct.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Account{}, fmt.Errorf("parse created_at for account %q: %w", login, err)
	}
	acct.UpdatedAt, _ = parseTime(now)
	return acct, nil
}

// Get returns the account with its decrypted token.
func (r *AccountRepo) Get(ctx context.Context, id int64) (model.Account, error) {
	if r.key == nil {
		return model.Account{}, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT id, login, token, created_at, updated_at FROM accounts WHERE id = ?`
	acct, err := r.scanAccount(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("get account %d: %w", id, driven.ErrAccountNotFound)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("get account %d: %w", id, err)
	}
	return acct, nil
}

// List returns all accounts ordered by login, with decrypted tokens.
func (r *AccountRepo) List(ctx context.Context) ([]model.Account, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT id, login, token, created_at, updated_at FROM accounts ORDER BY login`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		acct, err := r.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// Delete removes the account. Its repositories stay, detached from any account.
func (r *AccountRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.Writer.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete account %d: %w", id, driven.ErrAccountNotFound)
	}
	return nil
}

func (r *AccountRepo) scanAccount(s scanner) (model.Account, error) {
	var acct model.Account
	var encrypted, createdAt, updatedAt string
	if err := s.Scan(&acct.ID, &acct.Login, &encrypted, &createdAt, &updatedAt); err != nil {
		return model.Account{}, err
	}

	token, err := r.decrypt(encrypted)
	if err != nil {
		return model.Account{}, fmt.Errorf("decrypt token for account %q: %w", acct.Login, err)
	}
	acct.Token = token

	if acct.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Account{}, fmt.Errorf("parse created_at for account %q: %w", acct.Login, err)
	}
	if acct.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Account{}, fmt.Errorf("parse updated_at for account %q: %w", acct.Login, err)
	}
	return acct, nil
}

// encrypt returns base64(nonce || ciphertext || tag).
func (r *AccountRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (r *AccountRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}
	return string(plaintext), nil
}

func (r *AccountRepo) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
