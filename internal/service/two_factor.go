package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/sandeepkv93/account-security-service/internal/domain"
)

const (
	totpPeriod     = 30
	totpSkew       = 2
	totpSecretSize = 20
	totpDigits     = otp.DigitsSix

	DefaultBackupCodeCount = domain.MaxBackupCodes
	backupCodeBytes        = 4
)

var ErrBackupCodeCount = errors.New("invalid backup code count")

// SecretSealer encrypts values at rest. *security.CryptoBox implements it.
type SecretSealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type Enrollment struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// TwoFactorEngine issues and checks TOTP secrets and backup codes. It holds
// no per-user state; callers persist what it returns.
type TwoFactorEngine struct {
	sealer SecretSealer
	issuer string
	now    func() time.Time
}

func NewTwoFactorEngine(sealer SecretSealer, issuer string) *TwoFactorEngine {
	return &TwoFactorEngine{sealer: sealer, issuer: issuer, now: time.Now}
}

// BeginEnrollment creates a 160-bit secret for label. The secret is returned
// in plaintext exactly once; the caller stores it sealed and pending.
func (e *TwoFactorEngine) BeginEnrollment(label string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: label,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      totpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	return &Enrollment{Secret: key.Secret(), ProvisioningURI: key.URL()}, nil
}

func (e *TwoFactorEngine) ConfirmEnrollment(secret, code string) bool {
	return e.validate(secret, code)
}

// Verify unseals encryptedSecret and checks code against it. A sealing
// failure is returned as an error and never as a false match.
func (e *TwoFactorEngine) Verify(encryptedSecret, code string) (bool, error) {
	_, ok, err := e.VerifyStep(encryptedSecret, code, 0)
	return ok, err
}

// VerifyStep is Verify that also returns the time step the code matched.
// Steps at or before lastStep are refused, so a code accepted once cannot be
// presented again while it is still inside the skew window.
func (e *TwoFactorEngine) VerifyStep(encryptedSecret, code string, lastStep int64) (int64, bool, error) {
	secret, err := e.sealer.Decrypt(encryptedSecret)
	if err != nil {
		return 0, false, fmt.Errorf("unseal totp secret: %w", err)
	}
	step, ok := e.matchStep(secret, code, lastStep)
	return step, ok, nil
}

func (e *TwoFactorEngine) SealSecret(secret string) (string, error) {
	return e.sealer.Encrypt(secret)
}

func (e *TwoFactorEngine) validate(secret, code string) bool {
	_, ok := e.matchStep(secret, code, 0)
	return ok
}

func (e *TwoFactorEngine) matchStep(secret, code string, after int64) (int64, bool) {
	code = strings.TrimSpace(code)
	if len(code) != totpDigits.Length() || secret == "" {
		return 0, false
	}
	opts := totp.ValidateOpts{Period: totpPeriod, Digits: totpDigits, Algorithm: otp.AlgorithmSHA1}
	current := e.now().UTC().Unix() / totpPeriod
	for step := current - totpSkew; step <= current+totpSkew; step++ {
		if step <= after {
			continue
		}
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*totpPeriod, 0).UTC(), opts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}

// GenerateBackupCodes returns count distinct codes of eight uppercase hex
// characters.
func (e *TwoFactorEngine) GenerateBackupCodes(count int) ([]string, error) {
	if count <= 0 || count > domain.MaxBackupCodes {
		return nil, fmt.Errorf("%w: %d", ErrBackupCodeCount, count)
	}
	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	buf := make([]byte, backupCodeBytes)
	for len(codes) < count {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("read backup code: %w", err)
		}
		code := strings.ToUpper(hex.EncodeToString(buf))
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// EncryptBackupCodes seals each code separately, preserving order.
func (e *TwoFactorEngine) EncryptBackupCodes(codes []string) ([]string, error) {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		sealed, err := e.sealer.Encrypt(normalizeBackupCode(c))
		if err != nil {
			return nil, fmt.Errorf("seal backup code: %w", err)
		}
		out = append(out, sealed)
	}
	return out, nil
}

func (e *TwoFactorEngine) DecryptBackupCodes(encrypted []string) ([]string, error) {
	out := make([]string, 0, len(encrypted))
	for _, c := range encrypted {
		plain, err := e.sealer.Decrypt(c)
		if err != nil {
			return nil, fmt.Errorf("unseal backup code: %w", err)
		}
		out = append(out, plain)
	}
	return out, nil
}

// VerifyBackupCode matches candidate case-insensitively against the set.
func (e *TwoFactorEngine) VerifyBackupCode(candidate string, encrypted []string) (bool, error) {
	idx, err := e.matchBackupCode(candidate, encrypted)
	return idx >= 0, err
}

// ConsumeBackupCode returns encrypted minus the entry matching used, with the
// survivors resealed. ok is false when nothing matched. The result must be
// persisted with a compare-and-swap so a code cannot be spent twice.
func (e *TwoFactorEngine) ConsumeBackupCode(used string, encrypted []string) (remaining []string, ok bool, err error) {
	idx, err := e.matchBackupCode(used, encrypted)
	if err != nil || idx < 0 {
		return encrypted, false, err
	}
	plain, err := e.DecryptBackupCodes(encrypted)
	if err != nil {
		return encrypted, false, err
	}
	survivors := make([]string, 0, len(plain)-1)
	survivors = append(survivors, plain[:idx]...)
	survivors = append(survivors, plain[idx+1:]...)
	remaining, err = e.EncryptBackupCodes(survivors)
	if err != nil {
		return encrypted, false, err
	}
	return remaining, true, nil
}

func (e *TwoFactorEngine) matchBackupCode(candidate string, encrypted []string) (int, error) {
	candidate = normalizeBackupCode(candidate)
	if len(candidate) != 2*backupCodeBytes {
		return -1, nil
	}
	plain, err := e.DecryptBackupCodes(encrypted)
	if err != nil {
		return -1, err
	}
	match := -1
	for i, c := range plain {
		if subtle.ConstantTimeCompare([]byte(normalizeBackupCode(c)), []byte(candidate)) == 1 && match < 0 {
			match = i
		}
	}
	return match, nil
}

func normalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}
