// Package certificate issues, invalidates and verifies entitlement
// certificates. Signing is ed25519 over the canonical payload and serial;
// serials live in their own table so an invalidated serial can be rejected
// at decode time even if the certificate bytes survive elsewhere.
package certificate

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/entforge/entforge/internal/clock"
)

var (
	ErrInvalidCertificate = errors.New("invalid_certificate")
	ErrSerialRevoked      = errors.New("serial_revoked")
	ErrSigningFailed      = errors.New("signing_failed")
)

// Serial is the registry row backing one issued certificate serial.
type Serial struct {
	Serial    int64        `gorm:"primaryKey" json:"serial"`
	OwnerID   snowflake.ID `gorm:"not null;index" json:"owner_id"`
	Revoked   bool         `gorm:"not null;default:false" json:"revoked"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	RevokedAt *time.Time   `json:"revoked_at"`
}

// TableName sets the database table name.
func (Serial) TableName() string { return "certificate_serials" }

// Certificate is an issued certificate: the serial, the canonical payload it
// was signed over, and the encoded signed bytes.
type Certificate struct {
	Serial  int64
	Payload []byte
	Bytes   []byte
}

// Signer issues and verifies entitlement certificates. Issue and Invalidate
// participate in the caller's transaction.
type Signer interface {
	Issue(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, payload Payload) (Certificate, error)
	Invalidate(ctx context.Context, db *gorm.DB, serials []int64) error
	Decode(ctx context.Context, db *gorm.DB, certBytes []byte) (Payload, error)
}

type envelope struct {
	Serial    int64  `json:"serial"`
	Payload   []byte `json:"payload"`
	Signature []byte `json:"signature"`
}

type ed25519Signer struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	genID *snowflake.Node
	clock clock.Clock
}

// NewSigner derives an ed25519 keypair from seed. An empty seed yields an
// ephemeral per-process key, which is fine for development but means issued
// certificates do not verify across restarts.
func NewSigner(seed string, genID *snowflake.Node, clk clock.Clock) Signer {
	var key ed25519.PrivateKey
	if seed == "" {
		_, generated, err := ed25519.GenerateKey(nil)
		if err != nil {
			panic(err)
		}
		key = generated
	} else {
		digest := sha256.Sum256([]byte(seed))
		key = ed25519.NewKeyFromSeed(digest[:])
	}
	return &ed25519Signer{
		priv:  key,
		pub:   key.Public().(ed25519.PublicKey),
		genID: genID,
		clock: clk,
	}
}

func (s *ed25519Signer) Issue(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, payload Payload) (Certificate, error) {
	canonical, err := payload.Canonical()
	if err != nil {
		return Certificate{}, errors.Join(ErrSigningFailed, err)
	}

	serial := s.genID.Generate().Int64()
	signature := ed25519.Sign(s.priv, signedMessage(serial, canonical))

	raw, err := json.Marshal(envelope{Serial: serial, Payload: canonical, Signature: signature})
	if err != nil {
		return Certificate{}, errors.Join(ErrSigningFailed, err)
	}

	record := Serial{Serial: serial, OwnerID: ownerID, CreatedAt: s.clock.Now()}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return Certificate{}, err
	}

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(encoded, raw)

	return Certificate{Serial: serial, Payload: canonical, Bytes: encoded}, nil
}

func (s *ed25519Signer) Invalidate(ctx context.Context, db *gorm.DB, serials []int64) error {
	if len(serials) == 0 {
		return nil
	}
	now := s.clock.Now()
	return db.WithContext(ctx).Model(&Serial{}).
		Where("serial IN ?", serials).
		Updates(map[string]any{"revoked": true, "revoked_at": now}).Error
}

func (s *ed25519Signer) Decode(ctx context.Context, db *gorm.DB, certBytes []byte) (Payload, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(certBytes)))
	n, err := base64.StdEncoding.Decode(raw, certBytes)
	if err != nil {
		return Payload{}, ErrInvalidCertificate
	}

	var env envelope
	if err := json.Unmarshal(raw[:n], &env); err != nil {
		return Payload{}, ErrInvalidCertificate
	}

	if !ed25519.Verify(s.pub, signedMessage(env.Serial, env.Payload), env.Signature) {
		return Payload{}, ErrInvalidCertificate
	}

	var record Serial
	err = db.WithContext(ctx).Where("serial = ?", env.Serial).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Payload{}, ErrInvalidCertificate
		}
		return Payload{}, err
	}
	if record.Revoked {
		return Payload{}, ErrSerialRevoked
	}

	var payload Payload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return Payload{}, ErrInvalidCertificate
	}
	return payload, nil
}

func signedMessage(serial int64, payload []byte) []byte {
	msg := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(msg, uint64(serial))
	copy(msg[8:], payload)
	return msg
}
