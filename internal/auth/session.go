package auth

import (
	"strings"
	"sync"

	"github.com/litebridge/bridge-agent/internal/chain"
	log "github.com/sirupsen/logrus"
)

// Session is the explicit per-account context: chain signer, lower-cased
// account address and the in-memory secondary keypair. Created on wallet
// connect, torn down on disconnect, passed to every component that needs to
// sign.
type Session struct {
	account string
	signer  chain.Signer

	mu   sync.RWMutex
	keys *SecondaryKeys
}

func NewSession(signer chain.Signer) *Session {
	return &Session{
		account: strings.ToLower(signer.Address().Hex()),
		signer:  signer,
	}
}

func (s *Session) Account() string {
	return s.account
}

func (s *Session) Signer() chain.Signer {
	return s.signer
}

// DeriveKeys completes the secondary-identity setup by asking the wallet to
// sign the fixed derivation message. Signing may block on user approval.
func (s *Session) DeriveKeys() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys != nil {
		return nil
	}
	sig, err := s.signer.SignPersonal([]byte(KeyDerivationMessage))
	if err != nil {
		return err
	}
	keys, err := DeriveSecondaryKeys(sig)
	if err != nil {
		return err
	}
	s.keys = keys
	log.Infof("Secondary keypair derived for account %s", s.account)
	return nil
}

func (s *Session) HasKeys() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys != nil
}

func (s *Session) secondaryKeys() *SecondaryKeys {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys
}

// Close tears the session down and wipes the secondary private keys.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys != nil {
		s.keys.Destroy()
		s.keys = nil
	}
	log.Debugf("Session closed for account %s", s.account)
}
