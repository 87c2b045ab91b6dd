package domain

import (
	"testing"
	"time"
)

func TestCredentialValidate(t *testing.T) {
	secret := "ciphertext"
	cases := []struct {
		name    string
		cred    Credential
		wantErr error
	}{
		{name: "disabled without secret", cred: Credential{TwoFactorState: TwoFactorDisabled}},
		{name: "pending with secret", cred: Credential{TwoFactorState: TwoFactorPending, TwoFactorSecret: &secret}},
		{name: "enabled without secret", cred: Credential{TwoFactorState: TwoFactorEnabled}, wantErr: ErrCredentialSecretMissing},
		{name: "too many codes", cred: Credential{BackupCodes: make([]string, MaxBackupCodes+1)}, wantErr: ErrCredentialTooManyCodes},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cred.Validate(); err != tc.wantErr {
				t.Fatalf("Validate()=%v want %v", err, tc.wantErr)
			}
		})
	}
}

func TestTokenPurposeTTL(t *testing.T) {
	if got := TokenPurposePasswordReset.TTL(); got != time.Hour {
		t.Fatalf("password reset ttl=%v", got)
	}
	if got := TokenPurposeEmailVerification.TTL(); got != 24*time.Hour {
		t.Fatalf("email verification ttl=%v", got)
	}
	if TokenPurpose("other").Valid() {
		t.Fatal("unknown purpose must be invalid")
	}
}
