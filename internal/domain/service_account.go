package domain

import "crypto/rsa"

// ServiceAccount is a registered key pair allowed to exchange assertions.
type ServiceAccount struct {
	KeyID        int64
	KeyName      string
	AccessDomain string
	PublicKey    *rsa.PublicKey
}
