package signeropenpgp

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/fabien-marty/git-tag/internal/app/tag"
)

var _ tag.Signer = &Adapter{}

var ErrNoSigningKey = errors.New("no suitable signing key")

type AdapterOptions struct {
	KeyRingPath  string // armored private keyring
	Passphrase   string // used to decrypt encrypted private keys
	DefaultKeyID string // used when the request does not name a key (user.signingkey)
}

// Adapter produces armored detached OpenPGP signatures.
type Adapter struct {
	opts   AdapterOptions
	logger *slog.Logger
}

func NewAdapter(opts AdapterOptions) *Adapter {
	return &Adapter{
		opts:   opts,
		logger: slog.Default().With("adapter", "openpgp"),
	}
}

func (r *Adapter) readKeyRing() (openpgp.EntityList, error) {
	if r.opts.KeyRingPath == "" {
		return nil, fmt.Errorf("%w: no keyring configured", ErrNoSigningKey)
	}
	f, err := os.Open(r.opts.KeyRingPath)
	if err != nil {
		return nil, fmt.Errorf("can't open the keyring %s: %w", r.opts.KeyRingPath, err)
	}
	defer f.Close()
	keyring, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, fmt.Errorf("can't read the keyring %s: %w", r.opts.KeyRingPath, err)
	}
	return keyring, nil
}

func normalizeKeyID(keyID string) string {
	keyID = strings.TrimSpace(keyID)
	keyID = strings.TrimPrefix(keyID, "0x")
	keyID = strings.TrimPrefix(keyID, "0X")
	return strings.ToUpper(keyID)
}

// matches returns true if keyID designates the entity (long or short key id, fingerprint,
// email or name of one of its identities).
func matches(entity *openpgp.Entity, keyID string) bool {
	normalized := normalizeKeyID(keyID)
	keys := []*packet.PublicKey{entity.PrimaryKey}
	for _, subkey := range entity.Subkeys {
		keys = append(keys, subkey.PublicKey)
	}
	for _, key := range keys {
		if key == nil {
			continue
		}
		if key.KeyIdString() == normalized || key.KeyIdShortString() == normalized || fmt.Sprintf("%X", key.Fingerprint) == normalized {
			return true
		}
	}
	for _, identity := range entity.Identities {
		if identity.UserId == nil {
			continue
		}
		if strings.EqualFold(identity.UserId.Email, keyID) || identity.UserId.Name == keyID || identity.Name == keyID {
			return true
		}
	}
	return false
}

func (r *Adapter) selectEntity(keyring openpgp.EntityList, keyID string) (*openpgp.Entity, error) {
	if keyID == "" {
		keyID = r.opts.DefaultKeyID
	}
	for _, entity := range keyring {
		if entity.PrivateKey == nil {
			continue
		}
		if keyID == "" || matches(entity, keyID) {
			return entity, nil
		}
	}
	if keyID == "" {
		return nil, fmt.Errorf("%w: no private key in the keyring", ErrNoSigningKey)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSigningKey, keyID)
}

func (r *Adapter) decrypt(entity *openpgp.Entity) error {
	passphrase := []byte(r.opts.Passphrase)
	if entity.PrivateKey != nil && entity.PrivateKey.Encrypted {
		if err := entity.PrivateKey.Decrypt(passphrase); err != nil {
			return fmt.Errorf("can't decrypt the private key: %w", err)
		}
	}
	for _, subkey := range entity.Subkeys {
		if subkey.PrivateKey != nil && subkey.PrivateKey.Encrypted {
			if err := subkey.PrivateKey.Decrypt(passphrase); err != nil {
				return fmt.Errorf("can't decrypt the private subkey: %w", err)
			}
		}
	}
	return nil
}

// Sign returns an armored detached signature of the payload made with the key designated
// by keyID (or the default one).
func (r *Adapter) Sign(payload []byte, keyID string) ([]byte, error) {
	keyring, err := r.readKeyRing()
	if err != nil {
		return nil, err
	}
	entity, err := r.selectEntity(keyring, keyID)
	if err != nil {
		return nil, err
	}
	if err := r.decrypt(entity); err != nil {
		return nil, err
	}
	r.logger.Debug("signing payload", slog.String("key", entity.PrimaryKey.KeyIdString()))
	var signature bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&signature, entity, bytes.NewReader(payload), nil); err != nil {
		return nil, fmt.Errorf("can't sign the payload: %w", err)
	}
	res := signature.Bytes()
	if !bytes.HasSuffix(res, []byte("\n")) {
		res = append(res, '\n')
	}
	return res, nil
}
